package harvester

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fairdatapoint/fdp-index/app/models"
	"github.com/fairdatapoint/fdp-index/app/repository"
	"github.com/fairdatapoint/fdp-index/internal/pkg/admission"
	"github.com/fairdatapoint/fdp-index/internal/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	entries  repository.IndexEntryRepository
	metadata repository.MetadataRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	return &testEnv{
		entries:  repository.NewIndexEntryRepository(db),
		metadata: repository.NewMetadataRepository(db),
	}
}

func (e *testEnv) harvester(cfg Config) *Harvester {
	return New(e.entries, e.metadata, nil, cfg)
}

func (e *testEnv) accept(t *testing.T, clientURL string) *models.IndexEntry {
	t.Helper()
	entry, _, err := e.entries.EnsureEntry(context.Background(), clientURL, models.PermitAccepted)
	require.NoError(t, err)
	return entry
}

func fdpDocument(base string, extra string) string {
	return fmt.Sprintf(`@prefix dct: <http://purl.org/dc/terms/> .
@prefix r3d: <http://www.re3data.org/schema/3-0#> .
<%s> a r3d:Repository ;
    dct:title "Test FDP" .
%s`, base, extra)
}

// fdpServer serves an FDP root document and counts root requests
func fdpServer(t *testing.T, body func(base string) string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/turtle")
		_, _ = w.Write([]byte(body(srv.URL)))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestHarvest_InstallsValidDocument(t *testing.T) {
	env := newTestEnv(t)
	srv, hits := fdpServer(t, func(base string) string { return fdpDocument(base, "") })
	env.accept(t, srv.URL)

	res := env.harvester(DefaultConfig()).Harvest(context.Background(), srv.URL+"/")
	require.NoError(t, res.Err)
	assert.Equal(t, models.RetrievalInstalled, res.Outcome)
	assert.Equal(t, 2, res.Statements)
	assert.Equal(t, int32(1), hits.Load())

	entry, err := env.entries.GetByClientURL(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, models.StateValid, entry.State)
	assert.NotNil(t, entry.LastRetrievalAt)
	assert.Empty(t, entry.LastError)

	count, err := env.metadata.Count(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestHarvest_SkipsEntriesThatAreNotAccepted(t *testing.T) {
	env := newTestEnv(t)
	srv, hits := fdpServer(t, func(base string) string { return fdpDocument(base, "") })
	h := env.harvester(DefaultConfig())

	res := h.Harvest(context.Background(), srv.URL)
	assert.Equal(t, models.RetrievalSkipped, res.Outcome, "unknown entry")

	_, _, err := env.entries.EnsureEntry(context.Background(), srv.URL, models.PermitPending)
	require.NoError(t, err)
	res = h.Harvest(context.Background(), srv.URL)
	assert.Equal(t, models.RetrievalSkipped, res.Outcome, "pending entry")

	assert.Zero(t, hits.Load())
}

func TestHarvest_UnreachableKeepsPriorData(t *testing.T) {
	env := newTestEnv(t)
	var fail atomic.Bool
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/turtle")
		_, _ = w.Write([]byte(fdpDocument(srv.URL, "")))
	}))
	defer srv.Close()
	env.accept(t, srv.URL)
	h := env.harvester(DefaultConfig())

	require.Equal(t, models.RetrievalInstalled, h.Harvest(context.Background(), srv.URL).Outcome)

	fail.Store(true)
	res := h.Harvest(context.Background(), srv.URL)
	assert.Equal(t, models.RetrievalUnreachable, res.Outcome)
	assert.Error(t, res.Err)

	entry, err := env.entries.GetByClientURL(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, models.StateUnreachable, entry.State)
	assert.Contains(t, entry.LastError, "503")

	count, err := env.metadata.Count(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count, "previous graph stays installed")
}

func TestHarvest_InvalidShape(t *testing.T) {
	env := newTestEnv(t)
	srv, _ := fdpServer(t, func(base string) string {
		return `<https://someone.else.org> a <http://www.re3data.org/schema/3-0#Repository> .`
	})
	env.accept(t, srv.URL)

	res := env.harvester(DefaultConfig()).Harvest(context.Background(), srv.URL)
	assert.Equal(t, models.RetrievalInvalid, res.Outcome)

	entry, err := env.entries.GetByClientURL(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, models.StateInvalid, entry.State)

	count, err := env.metadata.Count(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestHarvest_SyntaxErrorIsInvalid(t *testing.T) {
	env := newTestEnv(t)
	srv, _ := fdpServer(t, func(base string) string { return "this is not turtle <" })
	env.accept(t, srv.URL)

	res := env.harvester(DefaultConfig()).Harvest(context.Background(), srv.URL)
	assert.Equal(t, models.RetrievalInvalid, res.Outcome)
}

func TestHarvest_TimeoutIsUnreachable(t *testing.T) {
	env := newTestEnv(t)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)
	env.accept(t, srv.URL)

	cfg := DefaultConfig()
	cfg.Timeout = 50 * time.Millisecond
	res := env.harvester(cfg).Harvest(context.Background(), srv.URL)
	assert.Equal(t, models.RetrievalUnreachable, res.Outcome)
}

func TestHarvest_FollowsCatalogLinks(t *testing.T) {
	env := newTestEnv(t)
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/turtle")
		_, _ = w.Write([]byte(fdpDocument(srv.URL, fmt.Sprintf(
			"<%s> <https://w3id.org/fdp/fdp-o#metadataCatalog> <%s/catalog/1>, <%s/catalog/missing> .",
			srv.URL, srv.URL, srv.URL))))
	})
	mux.HandleFunc("/catalog/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/n-triples")
		_, _ = fmt.Fprintf(w, "<%s/catalog/1> <http://purl.org/dc/terms/title> \"Catalog\" .\n", srv.URL)
	})
	mux.HandleFunc("/catalog/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	env.accept(t, srv.URL)

	res := env.harvester(DefaultConfig()).Harvest(context.Background(), srv.URL)
	require.Equal(t, models.RetrievalInstalled, res.Outcome)
	assert.Equal(t, 5, res.Statements, "root (4) plus child (1); the missing child is skipped")
}

func TestHarvest_SkipsDenyListedChildren(t *testing.T) {
	env := newTestEnv(t)
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var deniedHits atomic.Int32
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/turtle")
		_, _ = w.Write([]byte(fdpDocument(srv.URL, fmt.Sprintf(
			"<%s> <https://w3id.org/fdp/fdp-o#metadataCatalog> <%s/catalog/1>, <%s/internal/secret> .",
			srv.URL, srv.URL, srv.URL))))
	})
	mux.HandleFunc("/catalog/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/n-triples")
		_, _ = fmt.Fprintf(w, "<%s/catalog/1> <http://purl.org/dc/terms/title> \"Catalog\" .\n", srv.URL)
	})
	mux.HandleFunc("/internal/secret", func(w http.ResponseWriter, r *http.Request) {
		deniedHits.Add(1)
		w.Header().Set("Content-Type", "application/n-triples")
		_, _ = fmt.Fprintf(w, "<%s/internal/secret> <http://purl.org/dc/terms/title> \"Secret\" .\n", srv.URL)
	})
	env.accept(t, srv.URL)

	settingsDB, err := database.OpenMemory()
	require.NoError(t, err)
	policy := admission.NewPolicy(repository.NewSettingRepository(settingsDB))
	_, err = policy.Update(models.SettingsIndexPing{
		ValidDuration:     models.Duration(time.Hour),
		RateLimitDuration: models.Duration(time.Hour),
		RateLimitHits:     10,
		DenyList:          []string{`https?://[^/]+/internal/.*`},
	})
	require.NoError(t, err)

	h := env.harvester(DefaultConfig()).WithURLFilter(policy)
	res := h.Harvest(context.Background(), srv.URL)
	require.Equal(t, models.RetrievalInstalled, res.Outcome)
	assert.Equal(t, 5, res.Statements, "root (4) plus the allowed child (1)")
	assert.Zero(t, deniedHits.Load())

	statements, err := env.metadata.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	for _, st := range statements {
		assert.NotContains(t, st.Subject, "/internal/secret")
	}
}

func TestHarvest_ConcurrentRequestsShareOneFetch(t *testing.T) {
	env := newTestEnv(t)
	release := make(chan struct{})
	var hits atomic.Int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Header().Set("Content-Type", "text/turtle")
		_, _ = w.Write([]byte(fdpDocument(srv.URL, "")))
	}))
	defer srv.Close()
	env.accept(t, srv.URL)
	h := env.harvester(DefaultConfig())

	var wg sync.WaitGroup
	results := make([]Result, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = h.Harvest(context.Background(), srv.URL)
		}(i)
	}

	assert.Eventually(t, func() bool { return hits.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
	for _, res := range results {
		assert.Equal(t, models.RetrievalInstalled, res.Outcome)
	}
}

func TestHarvest_RejectedDuringFetchInstallsNothing(t *testing.T) {
	env := newTestEnv(t)
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entry, err := env.entries.GetByClientURL(context.Background(), srv.URL)
		if err == nil {
			_, _ = env.entries.UpdatePermit(context.Background(), entry.UUID, models.PermitRejected)
		}
		w.Header().Set("Content-Type", "text/turtle")
		_, _ = w.Write([]byte(fdpDocument(srv.URL, "")))
	}))
	defer srv.Close()
	env.accept(t, srv.URL)

	res := env.harvester(DefaultConfig()).Harvest(context.Background(), srv.URL)
	assert.Equal(t, models.RetrievalSkipped, res.Outcome)

	count, err := env.metadata.Count(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDeleteHarvestedData(t *testing.T) {
	env := newTestEnv(t)
	srv, _ := fdpServer(t, func(base string) string { return fdpDocument(base, "") })
	env.accept(t, srv.URL)
	h := env.harvester(DefaultConfig())

	require.Equal(t, models.RetrievalInstalled, h.Harvest(context.Background(), srv.URL).Outcome)
	triples, err := h.Statements(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, triples, 2)

	require.NoError(t, h.DeleteHarvestedData(context.Background(), srv.URL+"/"))
	triples, err = h.Statements(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Empty(t, triples)
}
