package admission

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/fairdatapoint/fdp-index/app/models"
	"github.com/fairdatapoint/fdp-index/app/repository"
	"github.com/gofiber/fiber/v2/log"
)

// Policy holds the active SettingsIndexPing together with its compiled deny
// patterns. Readers get a consistent snapshot; Update and Reset swap both at
// once.
type Policy struct {
	repo     repository.SettingRepository
	mu       sync.RWMutex
	settings models.SettingsIndexPing
	patterns []*regexp.Regexp
}

// NewPolicy creates a policy initialised with the defaults
func NewPolicy(repo repository.SettingRepository) *Policy {
	defaults := models.DefaultSettingsIndexPing()
	patterns, err := compilePatterns(defaults.DenyList)
	if err != nil {
		panic(fmt.Sprintf("default deny list does not compile: %v", err))
	}
	return &Policy{repo: repo, settings: defaults, patterns: patterns}
}

// Load reads the persisted policy. Missing or unusable values fall back to
// the defaults.
func (p *Policy) Load() error {
	raw, err := p.repo.GetValue(models.SettingKeyIndexPing)
	if err != nil {
		return fmt.Errorf("failed to load index ping settings: %w", err)
	}
	settings, complete := models.ParseSettingsIndexPing(raw)
	if raw != "" && !complete {
		log.Warn("[Admission] Stored index ping settings are incomplete, using defaults")
	}
	patterns, err := compilePatterns(settings.DenyList)
	if err != nil {
		return err
	}
	p.swap(settings, patterns)
	return nil
}

// Current returns a copy of the active settings
func (p *Policy) Current() models.SettingsIndexPing {
	settings, _ := p.snapshot()
	return settings
}

// Update validates, persists and activates new settings
func (p *Policy) Update(settings models.SettingsIndexPing) (models.SettingsIndexPing, error) {
	if settings.DenyList == nil {
		settings.DenyList = []string{}
	}
	if err := settings.Validate(); err != nil {
		return models.SettingsIndexPing{}, err
	}
	patterns, err := compilePatterns(settings.DenyList)
	if err != nil {
		return models.SettingsIndexPing{}, err
	}
	raw, err := settings.ToJSON()
	if err != nil {
		return models.SettingsIndexPing{}, err
	}
	if err := p.repo.SetValue(models.SettingKeyIndexPing, raw); err != nil {
		return models.SettingsIndexPing{}, err
	}
	p.swap(settings, patterns)
	log.Infof("[Admission] Index ping settings updated (hits=%d, window=%s, patterns=%d)",
		settings.RateLimitHits, settings.RateLimitDuration.Std(), len(settings.DenyList))
	return p.Current(), nil
}

// Reset removes the persisted settings and activates the defaults
func (p *Policy) Reset() (models.SettingsIndexPing, error) {
	if err := p.repo.DeleteValue(models.SettingKeyIndexPing); err != nil {
		return models.SettingsIndexPing{}, err
	}
	defaults := models.DefaultSettingsIndexPing()
	patterns, _ := compilePatterns(defaults.DenyList)
	p.swap(defaults, patterns)
	log.Info("[Admission] Index ping settings reset to defaults")
	return p.Current(), nil
}

func (p *Policy) swap(settings models.SettingsIndexPing, patterns []*regexp.Regexp) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings = settings
	p.patterns = patterns
}

func (p *Policy) snapshot() (models.SettingsIndexPing, []*regexp.Regexp) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	settings := p.settings
	settings.DenyList = append([]string{}, p.settings.DenyList...)
	return settings, p.patterns
}

// compilePatterns anchors every pattern so it has to match the whole URL
// DenyMatch returns the first deny pattern matching rawURL or its
// normalized form
func (p *Policy) DenyMatch(rawURL string) (string, bool) {
	_, patterns := p.snapshot()
	normalized := models.NormalizeClientURL(rawURL)
	for _, re := range patterns {
		if re.MatchString(rawURL) || re.MatchString(normalized) {
			return re.String(), true
		}
	}
	return "", false
}

// Denied reports whether rawURL matches the deny list
func (p *Policy) Denied(rawURL string) bool {
	_, denied := p.DenyMatch(rawURL)
	return denied
}

func compilePatterns(denyList []string) ([]*regexp.Regexp, error) {
	patterns := make([]*regexp.Regexp, 0, len(denyList))
	for _, raw := range denyList {
		re, err := regexp.Compile("^(?:" + raw + ")$")
		if err != nil {
			return nil, fmt.Errorf("invalid deny pattern %q: %w", raw, err)
		}
		patterns = append(patterns, re)
	}
	return patterns, nil
}
