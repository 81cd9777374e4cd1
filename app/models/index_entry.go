package models

import (
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IndexEntryPermit is the administrative decision whether an entry may be harvested
type IndexEntryPermit string

const (
	PermitPending  IndexEntryPermit = "PENDING"
	PermitAccepted IndexEntryPermit = "ACCEPTED"
	PermitRejected IndexEntryPermit = "REJECTED"
)

// IndexEntryState is the health of an entry as observed by the last harvest
type IndexEntryState string

const (
	StateUnknown     IndexEntryState = "UNKNOWN"
	StateValid       IndexEntryState = "VALID"
	StateInvalid     IndexEntryState = "INVALID"
	StateUnreachable IndexEntryState = "UNREACHABLE"
)

var (
	AllPermits = []IndexEntryPermit{PermitPending, PermitAccepted, PermitRejected}
	AllStates  = []IndexEntryState{StateUnknown, StateValid, StateInvalid, StateUnreachable}
)

// ParsePermit accepts the permit name in any case
func ParsePermit(raw string) (IndexEntryPermit, bool) {
	p := IndexEntryPermit(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range AllPermits {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// ParseState accepts the state name in any case
func ParseState(raw string) (IndexEntryState, bool) {
	s := IndexEntryState(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range AllStates {
		if s == known {
			return s, true
		}
	}
	return "", false
}

// IndexEntry is one known remote FAIR Data Point endpoint
type IndexEntry struct {
	ID              uint             `gorm:"primaryKey" json:"-"`
	UUID            string           `gorm:"type:varchar(36);uniqueIndex;not null" json:"uuid"`
	ClientURL       string           `gorm:"column:client_url;type:varchar(512);uniqueIndex;not null" json:"clientUrl"`
	Permit          IndexEntryPermit `gorm:"type:varchar(20);index;not null" json:"permit"`
	State           IndexEntryState  `gorm:"type:varchar(20);index;not null" json:"state"`
	LastError       string           `gorm:"type:text" json:"lastError,omitempty"`
	LastRetrievalAt *time.Time       `gorm:"column:last_retrieval_at" json:"lastRetrievalTime,omitempty"`
	CreatedAt       time.Time        `gorm:"autoCreateTime" json:"registrationTime"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime" json:"modificationTime"`
}

// TableName specifies the table name for the IndexEntry model
func (IndexEntry) TableName() string {
	return "index_entries"
}

// BeforeCreate assigns the stable identifier and normalizes the URL
func (e *IndexEntry) BeforeCreate(tx *gorm.DB) error {
	if e.UUID == "" {
		e.UUID = uuid.New().String()
	}
	e.ClientURL = NormalizeClientURL(e.ClientURL)
	if e.Permit == "" {
		e.Permit = PermitPending
	}
	if e.State == "" {
		e.State = StateUnknown
	}
	return nil
}

// IsActive reports whether the entry was harvested successfully within validDuration
func (e *IndexEntry) IsActive(validDuration time.Duration, now time.Time) bool {
	if e.State != StateValid || e.LastRetrievalAt == nil {
		return false
	}
	return now.Sub(*e.LastRetrievalAt) <= validDuration
}

// NeedsRefresh reports whether an accepted entry is due for re-harvesting
func (e *IndexEntry) NeedsRefresh(validDuration time.Duration, now time.Time) bool {
	if e.Permit != PermitAccepted {
		return false
	}
	if e.LastRetrievalAt == nil {
		return true
	}
	return now.Sub(*e.LastRetrievalAt) > validDuration
}

// NormalizeClientURL returns the canonical form used as the unique entry key
// and as the store context of the harvested graph.
func NormalizeClientURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.TrimRight(trimmed, "/")
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	switch {
	case port != "":
		host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		host = "[" + host + "]"
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String()
}

// IsHTTPURL checks that raw is an absolute http(s) URL with a host
func IsHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
