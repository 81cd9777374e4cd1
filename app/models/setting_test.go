package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettingsIndexPing(t *testing.T) {
	s := DefaultSettingsIndexPing()

	assert.Equal(t, 7*24*time.Hour, s.ValidDuration.Std())
	assert.Equal(t, 6*time.Hour, s.RateLimitDuration.Std())
	assert.Equal(t, 10, s.RateLimitHits)
	assert.Equal(t, []string{DefaultDenyPattern}, s.DenyList)
	assert.NoError(t, s.Validate())
}

func TestSettingsIndexPingRoundTrip(t *testing.T) {
	s := SettingsIndexPing{
		ValidDuration:     Duration(48 * time.Hour),
		RateLimitDuration: Duration(time.Minute),
		RateLimitHits:     3,
		DenyList:          []string{`^https://blocked\.example\.org.*$`},
	}

	raw, err := s.ToJSON()
	require.NoError(t, err)

	parsed, complete := ParseSettingsIndexPing(raw)
	assert.True(t, complete)
	assert.True(t, s.IsSameAs(parsed))
}

func TestParseSettingsIndexPingFallsBackAsUnit(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"Empty", ""},
		{"Garbage", "{not json"},
		{"Partial", `{"rateLimitHits": 2}`},
		{"Invalid pattern", `{"validDuration":"1h","rateLimitDuration":"1h","rateLimitHits":1,"denyList":["("]}`},
		{"Zero hits", `{"validDuration":"1h","rateLimitDuration":"1h","rateLimitHits":0,"denyList":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, complete := ParseSettingsIndexPing(tt.raw)
			assert.False(t, complete)
			assert.True(t, parsed.IsSameAs(DefaultSettingsIndexPing()))
		})
	}
}

func TestSettingsIndexPingIsSameAs(t *testing.T) {
	a := DefaultSettingsIndexPing()
	b := DefaultSettingsIndexPing()
	assert.True(t, a.IsSameAs(b))

	b.DenyList = append(b.DenyList, "^x$")
	assert.False(t, a.IsSameAs(b))

	c := DefaultSettingsIndexPing()
	c.RateLimitHits = 11
	assert.False(t, a.IsSameAs(c))
}

func TestSettingsIndexPingValidate(t *testing.T) {
	s := DefaultSettingsIndexPing()
	s.RateLimitDuration = 0
	assert.Error(t, s.Validate())

	s = DefaultSettingsIndexPing()
	s.DenyList = []string{"[unclosed"}
	assert.Error(t, s.Validate())
}
