package securityevent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeverityCritical.AtLeast(SeverityHigh))
	assert.True(t, SeverityHigh.AtLeast(SeverityHigh))
	assert.False(t, SeverityMedium.AtLeast(SeverityHigh))
	assert.Less(t, SeverityLow.Rank(), SeverityMedium.Rank())
	assert.Equal(t, 0, Severity("bogus").Rank())
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want Severity
		ok   bool
	}{
		{"low", SeverityLow, true},
		{" HIGH ", SeverityHigh, true},
		{"Critical", SeverityCritical, true},
		{"severe", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseSeverity(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEventType_Other(t *testing.T) {
	assert.True(t, EventFailedLogin.IsKnown())
	custom := Other(" Password_Spray ")
	assert.Equal(t, EventType("password_spray"), custom)
	assert.False(t, custom.IsKnown())
}

func TestSecurityEvent_Identifier(t *testing.T) {
	assert.Equal(t, "", SecurityEvent{}.Identifier())
	e := SecurityEvent{Metadata: map[string]any{MetadataIdentifier: "abc"}}
	assert.Equal(t, "abc", e.Identifier())
	e = SecurityEvent{Metadata: map[string]any{MetadataIdentifier: 42}}
	assert.Equal(t, "", e.Identifier())
}
