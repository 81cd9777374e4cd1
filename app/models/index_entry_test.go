package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeClientURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Already normalized", "https://fdp.example.org", "https://fdp.example.org"},
		{"Trailing slash", "https://fdp.example.org/", "https://fdp.example.org"},
		{"Upper case host", "HTTPS://FDP.Example.org/Path/", "https://fdp.example.org/Path"},
		{"Default https port", "https://fdp.example.org:443/fdp", "https://fdp.example.org/fdp"},
		{"Default http port", "http://fdp.example.org:80", "http://fdp.example.org"},
		{"Custom port kept", "http://fdp.example.org:8080/", "http://fdp.example.org:8080"},
		{"Fragment dropped", "https://fdp.example.org/#top", "https://fdp.example.org"},
		{"Query kept", "https://fdp.example.org/?x=1", "https://fdp.example.org?x=1"},
		{"Whitespace", "  https://fdp.example.org  ", "https://fdp.example.org"},
		{"IPv6 default port", "http://[::1]:80/", "http://[::1]"},
		{"Not a URL", "not a url/", "not a url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeClientURL(tt.input))
		})
	}
}

func TestIsHTTPURL(t *testing.T) {
	assert.True(t, IsHTTPURL("https://fdp.example.org"))
	assert.True(t, IsHTTPURL("http://localhost:8080/fdp"))
	assert.False(t, IsHTTPURL("ftp://fdp.example.org"))
	assert.False(t, IsHTTPURL("fdp.example.org"))
	assert.False(t, IsHTTPURL(""))
}

func TestParsePermitAndState(t *testing.T) {
	p, ok := ParsePermit("accepted")
	assert.True(t, ok)
	assert.Equal(t, PermitAccepted, p)

	_, ok = ParsePermit("maybe")
	assert.False(t, ok)

	s, ok := ParseState(" Unreachable ")
	assert.True(t, ok)
	assert.Equal(t, StateUnreachable, s)
}

func TestIndexEntryIsActive(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-24 * time.Hour)
	old := now.Add(-8 * 24 * time.Hour)

	valid := &IndexEntry{State: StateValid, LastRetrievalAt: &recent}
	assert.True(t, valid.IsActive(DefaultValidDuration, now))

	stale := &IndexEntry{State: StateValid, LastRetrievalAt: &old}
	assert.False(t, stale.IsActive(DefaultValidDuration, now))

	invalid := &IndexEntry{State: StateInvalid, LastRetrievalAt: &recent}
	assert.False(t, invalid.IsActive(DefaultValidDuration, now))

	never := &IndexEntry{State: StateValid}
	assert.False(t, never.IsActive(DefaultValidDuration, now))
}

func TestIndexEntryNeedsRefresh(t *testing.T) {
	now := time.Now()
	recent := now.Add(-time.Hour)
	old := now.Add(-30 * 24 * time.Hour)

	assert.True(t, (&IndexEntry{Permit: PermitAccepted}).NeedsRefresh(DefaultValidDuration, now))
	assert.False(t, (&IndexEntry{Permit: PermitAccepted, LastRetrievalAt: &recent}).NeedsRefresh(DefaultValidDuration, now))
	assert.True(t, (&IndexEntry{Permit: PermitAccepted, LastRetrievalAt: &old}).NeedsRefresh(DefaultValidDuration, now))
	assert.False(t, (&IndexEntry{Permit: PermitRejected}).NeedsRefresh(DefaultValidDuration, now))
}
