package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
)

// SettingKeyIndexPing is the settings row holding SettingsIndexPing as JSON
const SettingKeyIndexPing = "index_ping"

const (
	DefaultValidDuration     = 7 * 24 * time.Hour
	DefaultRateLimitDuration = 6 * time.Hour
	DefaultRateLimitHits     = 10
	DefaultDenyPattern       = `^(http|https)://localhost(:[0-9]+){0,1}.*$`
)

// Setting represents a system setting
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:setting_key;size:255;not null;uniqueIndex" json:"key" validate:"required,min=1,max=255"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:50;not null" json:"type" validate:"required"` // string, json
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Duration is a time.Duration that travels as a Go duration string ("6h0m0s")
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("duration must be a string like \"6h\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// SettingsIndexPing is the ping admission policy and entry validity window
type SettingsIndexPing struct {
	ValidDuration     Duration `json:"validDuration" validate:"gt=0"`
	RateLimitDuration Duration `json:"rateLimitDuration" validate:"gt=0"`
	RateLimitHits     int      `json:"rateLimitHits" validate:"gte=1"`
	DenyList          []string `json:"denyList" validate:"dive,required"`
}

// DefaultSettingsIndexPing returns the built-in policy
func DefaultSettingsIndexPing() SettingsIndexPing {
	return SettingsIndexPing{
		ValidDuration:     Duration(DefaultValidDuration),
		RateLimitDuration: Duration(DefaultRateLimitDuration),
		RateLimitHits:     DefaultRateLimitHits,
		DenyList:          []string{DefaultDenyPattern},
	}
}

// Validate checks field bounds and that every deny pattern compiles
func (s *SettingsIndexPing) Validate() error {
	validate := validator.New()
	if err := validate.Struct(s); err != nil {
		return err
	}
	for _, pattern := range s.DenyList {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid deny pattern %q: %w", pattern, err)
		}
	}
	return nil
}

// IsSameAs compares two policies field by field
func (s SettingsIndexPing) IsSameAs(other SettingsIndexPing) bool {
	if s.ValidDuration != other.ValidDuration ||
		s.RateLimitDuration != other.RateLimitDuration ||
		s.RateLimitHits != other.RateLimitHits ||
		len(s.DenyList) != len(other.DenyList) {
		return false
	}
	for i := range s.DenyList {
		if s.DenyList[i] != other.DenyList[i] {
			return false
		}
	}
	return true
}

// settingsIndexPingJSON mirrors SettingsIndexPing with optional fields so a
// partial document can be detected.
type settingsIndexPingJSON struct {
	ValidDuration     *Duration `json:"validDuration"`
	RateLimitDuration *Duration `json:"rateLimitDuration"`
	RateLimitHits     *int      `json:"rateLimitHits"`
	DenyList          *[]string `json:"denyList"`
}

// ParseSettingsIndexPing decodes a persisted policy. Empty, partial or
// invalid documents yield the defaults as a whole and complete=false.
func ParseSettingsIndexPing(raw string) (settings SettingsIndexPing, complete bool) {
	if raw == "" {
		return DefaultSettingsIndexPing(), false
	}
	var doc settingsIndexPingJSON
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return DefaultSettingsIndexPing(), false
	}
	if doc.ValidDuration == nil || doc.RateLimitDuration == nil || doc.RateLimitHits == nil || doc.DenyList == nil {
		return DefaultSettingsIndexPing(), false
	}
	settings = SettingsIndexPing{
		ValidDuration:     *doc.ValidDuration,
		RateLimitDuration: *doc.RateLimitDuration,
		RateLimitHits:     *doc.RateLimitHits,
		DenyList:          append([]string{}, (*doc.DenyList)...),
	}
	if err := settings.Validate(); err != nil {
		return DefaultSettingsIndexPing(), false
	}
	return settings, true
}

// ToJSON serializes the policy for the settings table
func (s SettingsIndexPing) ToJSON() (string, error) {
	if s.DenyList == nil {
		s.DenyList = []string{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
