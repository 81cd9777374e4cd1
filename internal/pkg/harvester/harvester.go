package harvester

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fairdatapoint/fdp-index/app/models"
	"github.com/fairdatapoint/fdp-index/app/repository"
	"github.com/fairdatapoint/fdp-index/internal/pkg/rdfio"
	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxBodyBytes = 16 << 20
	DefaultMaxChildren  = 50
	DefaultUserAgent    = "fdp-index-harvester/1.0"
)

var (
	// DefaultRootPredicates identify the root statement of an FDP document
	DefaultRootPredicates = []string{rdfio.RDFType}
	// DefaultChildPredicates link an FDP to the catalogs harvested with it
	DefaultChildPredicates = []string{
		"https://w3id.org/fdp/fdp-o#metadataCatalog",
		"http://www.re3data.org/schema/3-0#dataCatalog",
		"http://www.w3.org/ns/dcat#catalog",
	}
)

// Config tunes fetching and validation
type Config struct {
	Timeout         time.Duration
	MaxBodyBytes    int64
	MaxChildren     int
	RootPredicates  []string
	ChildPredicates []string
	UserAgent       string
}

// DefaultConfig returns the built-in harvesting limits
func DefaultConfig() Config {
	return Config{
		Timeout:         DefaultTimeout,
		MaxBodyBytes:    DefaultMaxBodyBytes,
		MaxChildren:     DefaultMaxChildren,
		RootPredicates:  DefaultRootPredicates,
		ChildPredicates: DefaultChildPredicates,
		UserAgent:       DefaultUserAgent,
	}
}

// Result describes one harvest run. Err carries the failure reason for
// every outcome except Installed.
type Result struct {
	Outcome    models.RetrievalOutcome
	Statements int
	Err        error
}

// URLFilter rejects URLs that must not be fetched
type URLFilter interface {
	Denied(rawURL string) bool
}

// Harvester fetches entry documents and installs them in the metadata store
type Harvester struct {
	entries  repository.IndexEntryRepository
	metadata repository.MetadataRepository
	client   *http.Client
	cfg      Config
	filter   URLFilter
	group    singleflight.Group
	now      func() time.Time
}

// New creates a harvester. A nil client gets one with cfg.Timeout.
func New(entries repository.IndexEntryRepository, metadata repository.MetadataRepository, client *http.Client, cfg Config) *Harvester {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.MaxChildren < 0 {
		cfg.MaxChildren = 0
	}
	if len(cfg.RootPredicates) == 0 {
		cfg.RootPredicates = DefaultRootPredicates
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Harvester{
		entries:  entries,
		metadata: metadata,
		client:   client,
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithURLFilter checks every linked catalog against f before it is fetched
func (h *Harvester) WithURLFilter(f URLFilter) *Harvester {
	h.filter = f
	return h
}

// Harvest retrieves, validates and installs the metadata of one entry.
// Concurrent calls for the same URL share a single run. Failures are
// reported in the Result and on the entry, never as a panic or error.
func (h *Harvester) Harvest(ctx context.Context, clientURL string) Result {
	key := models.NormalizeClientURL(clientURL)
	v, _, _ := h.group.Do(key, func() (interface{}, error) {
		return h.run(ctx, key), nil
	})
	return v.(Result)
}

// harvestError tags a failure with the outcome it leads to
type harvestError struct {
	outcome models.RetrievalOutcome
	err     error
}

func (e *harvestError) Error() string { return e.err.Error() }
func (e *harvestError) Unwrap() error { return e.err }

func unreachable(format string, args ...interface{}) error {
	return &harvestError{outcome: models.RetrievalUnreachable, err: fmt.Errorf(format, args...)}
}

func invalid(format string, args ...interface{}) error {
	return &harvestError{outcome: models.RetrievalInvalid, err: fmt.Errorf(format, args...)}
}

func (h *Harvester) run(ctx context.Context, clientURL string) Result {
	if res, ok := h.checkPermit(ctx, clientURL); !ok {
		return res
	}

	log.Infof("[Harvester] Harvesting %s", clientURL)
	triples, err := h.collect(ctx, clientURL)
	if err != nil {
		return h.fail(ctx, clientURL, err)
	}

	// the permit may have changed while fetching
	if res, ok := h.checkPermit(ctx, clientURL); !ok {
		return res
	}

	statements := make([]models.Statement, len(triples))
	for i, t := range triples {
		statements[i] = models.Statement{Subject: t.Subject, Predicate: t.Predicate, Object: t.Object}
	}
	if err := h.metadata.Replace(ctx, clientURL, statements); err != nil {
		log.Errorf("[Harvester] Failed to install %d statements for %s: %v", len(statements), clientURL, err)
		return Result{Outcome: models.RetrievalStoreFailed, Err: err}
	}

	// a rejection that raced the install must not leave data behind
	if res, ok := h.checkPermit(ctx, clientURL); !ok {
		if err := h.metadata.DeleteContext(context.WithoutCancel(ctx), clientURL); err != nil {
			log.Errorf("[Harvester] Failed to remove data of %s after permit change: %v", clientURL, err)
		}
		return res
	}

	now := h.now()
	if err := h.entries.UpdateState(ctx, clientURL, models.StateValid, "", &now); err != nil {
		log.Errorf("[Harvester] Failed to mark %s valid: %v", clientURL, err)
	}
	log.Infof("[Harvester] Installed %d statements for %s", len(statements), clientURL)
	return Result{Outcome: models.RetrievalInstalled, Statements: len(statements)}
}

// checkPermit returns ok=false with the Result to report when the entry is
// missing, not accepted or unreadable
func (h *Harvester) checkPermit(ctx context.Context, clientURL string) (Result, bool) {
	entry, err := h.entries.GetByClientURL(ctx, clientURL)
	if errors.Is(err, repository.ErrNotFound) {
		return Result{Outcome: models.RetrievalSkipped, Err: fmt.Errorf("no entry for %s", clientURL)}, false
	}
	if err != nil {
		log.Errorf("[Harvester] Failed to load entry %s: %v", clientURL, err)
		return Result{Outcome: models.RetrievalStoreFailed, Err: err}, false
	}
	if entry.Permit != models.PermitAccepted {
		return Result{Outcome: models.RetrievalSkipped, Err: fmt.Errorf("entry %s is %s", clientURL, entry.Permit)}, false
	}
	return Result{}, true
}

// fail records an unsuccessful run on the entry; stored data stays as is
func (h *Harvester) fail(ctx context.Context, clientURL string, err error) Result {
	outcome := models.RetrievalUnreachable
	var he *harvestError
	if errors.As(err, &he) {
		outcome = he.outcome
	}
	state := models.StateUnreachable
	if outcome == models.RetrievalInvalid {
		state = models.StateInvalid
	}

	log.Warnf("[Harvester] Harvest of %s failed (%s): %v", clientURL, outcome, err)
	now := h.now()
	if uerr := h.entries.UpdateState(context.WithoutCancel(ctx), clientURL, state, err.Error(), &now); uerr != nil {
		log.Errorf("[Harvester] Failed to record state of %s: %v", clientURL, uerr)
	}
	return Result{Outcome: outcome, Err: err}
}

// collect fetches the root document, checks its shape and merges the
// documents of linked catalogs
func (h *Harvester) collect(ctx context.Context, clientURL string) ([]rdfio.Triple, error) {
	triples, err := h.fetch(ctx, clientURL)
	if err != nil {
		return nil, err
	}
	if !h.hasRoot(triples, clientURL) {
		return nil, invalid("document at %s has no root statement about %s", clientURL, clientURL)
	}

	for _, child := range h.children(triples, clientURL) {
		if h.filter != nil && h.filter.Denied(child) {
			log.Warnf("[Harvester] Skipping deny-listed child %s of %s", child, clientURL)
			continue
		}
		childTriples, err := h.fetch(ctx, child)
		if err != nil {
			log.Warnf("[Harvester] Skipping child %s of %s: %v", child, clientURL, err)
			continue
		}
		triples = append(triples, childTriples...)
	}
	return dedupe(triples), nil
}

func (h *Harvester) hasRoot(triples []rdfio.Triple, clientURL string) bool {
	for _, t := range triples {
		if !rdfio.IsIRI(t.Subject) || models.NormalizeClientURL(rdfio.IRIValue(t.Subject)) != clientURL {
			continue
		}
		for _, p := range h.cfg.RootPredicates {
			if t.Predicate == rdfio.IRI(p) {
				return true
			}
		}
	}
	return false
}

func (h *Harvester) children(triples []rdfio.Triple, clientURL string) []string {
	var out []string
	seen := map[string]bool{clientURL: true}
	for _, t := range triples {
		if len(out) >= h.cfg.MaxChildren {
			break
		}
		if !rdfio.IsIRI(t.Subject) || models.NormalizeClientURL(rdfio.IRIValue(t.Subject)) != clientURL || !rdfio.IsIRI(t.Object) {
			continue
		}
		for _, p := range h.cfg.ChildPredicates {
			if t.Predicate != rdfio.IRI(p) {
				continue
			}
			child := rdfio.IRIValue(t.Object)
			if !models.IsHTTPURL(child) || seen[child] {
				break
			}
			seen[child] = true
			out = append(out, child)
			break
		}
	}
	return out
}

func dedupe(triples []rdfio.Triple) []rdfio.Triple {
	seen := make(map[rdfio.Triple]struct{}, len(triples))
	out := triples[:0]
	for _, t := range triples {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// fetch downloads and parses one document
func (h *Harvester) fetch(ctx context.Context, target string) ([]rdfio.Triple, error) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, unreachable("invalid URL %s: %v", target, err)
	}
	req.Header.Set("Accept", rdfio.AcceptHeader())
	req.Header.Set("User-Agent", h.cfg.UserAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, unreachable("GET %s: %v", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, unreachable("GET %s: unexpected status %d", target, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, unreachable("GET %s: reading body: %v", target, err)
	}
	if int64(len(body)) > h.cfg.MaxBodyBytes {
		return nil, invalid("document at %s exceeds %d bytes", target, h.cfg.MaxBodyBytes)
	}

	format, ok := rdfio.FormatForContentType(resp.Header.Get("Content-Type"))
	if !ok {
		format = rdfio.Turtle
		if u, err := url.Parse(target); err == nil {
			if byExt, ok := rdfio.FormatForPath(u.Path); ok {
				format = byExt
			}
		}
	}

	triples, err := rdfio.Parse(bytes.NewReader(body), format, target)
	if err != nil {
		return nil, invalid("document at %s: %v", target, err)
	}
	return triples, nil
}

// DeleteHarvestedData removes the stored graph of an entry
func (h *Harvester) DeleteHarvestedData(ctx context.Context, clientURL string) error {
	return h.metadata.DeleteContext(ctx, models.NormalizeClientURL(clientURL))
}

// Statements returns the stored graph of an entry as triples
func (h *Harvester) Statements(ctx context.Context, clientURL string) ([]rdfio.Triple, error) {
	stored, err := h.metadata.Get(ctx, models.NormalizeClientURL(clientURL))
	if err != nil {
		return nil, err
	}
	triples := make([]rdfio.Triple, len(stored))
	for i, st := range stored {
		triples[i] = rdfio.Triple{Subject: st.Subject, Predicate: st.Predicate, Object: st.Object}
	}
	return triples, nil
}
