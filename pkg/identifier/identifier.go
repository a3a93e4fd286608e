// Package identifier derives the opaque rate-limit key for a client.
//
// An identifier is a one-way hash of the client address and descriptor (User-Agent).
// It is stable across requests from the same client and cannot be reversed to
// recover either input.
package identifier

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// Unknown is used for any client attribute that could not be determined.
const Unknown = "unknown"

// Length is the number of hex characters kept from the digest.
const Length = 32

// ClientInfo describes the caller of a request as seen by the login flow.
type ClientInfo struct {
	Address        string
	Descriptor     string
	Referer        string
	AcceptLanguage string
}

// Derive returns the identifier for a source address and client descriptor.
func Derive(sourceAddress, clientDescriptor string) string {
	sum := sha256.Sum256([]byte(sourceAddress + ":" + clientDescriptor))
	return hex.EncodeToString(sum[:])[:Length]
}

// FromRequest extracts client info from r and derives its identifier.
func FromRequest(r *http.Request) string {
	info := ExtractClientInfo(r)
	return Derive(info.Address, info.Descriptor)
}

// ExtractClientInfo reads the client address and descriptor from r.
// The address prefers the first hop of X-Forwarded-For, then X-Real-IP,
// then CF-Connecting-IP, and finally the host part of RemoteAddr.
func ExtractClientInfo(r *http.Request) ClientInfo {
	descriptor := strings.TrimSpace(r.UserAgent())
	if descriptor == "" {
		descriptor = Unknown
	}

	return ClientInfo{
		Address:        clientAddress(r),
		Descriptor:     descriptor,
		Referer:        r.Referer(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
	}
}

func clientAddress(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs, take the first one
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}

	for _, header := range []string{"X-Real-IP", "CF-Connecting-IP"} {
		if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
			return v
		}
	}

	if r.RemoteAddr == "" {
		return Unknown
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	if host == "" {
		return Unknown
	}
	return host
}
