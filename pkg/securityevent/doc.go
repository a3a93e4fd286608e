// Package securityevent is the append-only security event log.
//
// Events carry a type, a severity (low < medium < high < critical), the client
// address and user agent, and free-form metadata. The rate limiter and the
// suspicious activity detector store the rate-limit identifier under the
// "identifier" metadata key so events can be counted per identifier.
package securityevent
