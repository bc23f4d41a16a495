package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paraid/paraid/internal/config"
	"github.com/paraid/paraid/internal/engine"
	"github.com/paraid/paraid/internal/refdata"
)

const testCSV = `Parasite,Group,Subtype,Countries Visited,Symptoms,Blood Film Result,Key Test
Plasmodium falciparum,1,,Nigeria;Kenya,Fever;Rigors,Positive,Blood films
Giardia lamblia,2,,Unknown,Diarrhea;Bloating,Negative,Stool microscopy
`

func newTestServer(t *testing.T, cfg config.Config) (*Server, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "parasites.csv")
	require.NoError(t, os.WriteFile(path, []byte(testCSV), 0o644))

	store := refdata.NewStore(refdata.NewCSVSource(path))
	srv := New(cfg, store, engine.NewScorer(nil), nil)
	require.NoError(t, store.Reload(context.Background()))

	return srv, path
}

func defaultTestConfig() config.Config {
	cfg := *config.Default()
	cfg.RateLimit.RPS = 0 // unlimited unless a test opts in
	return cfg
}

func TestServer_ScoreEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, defaultTestConfig())

	body := `{"Symptoms": ["Diarrhea"], "Blood Film Result": "Negative"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/score", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp struct {
		RuleVersion     string `json:"rule_version"`
		ReferenceRows   int    `json:"reference_rows"`
		PopulatedFields int    `json:"populated_fields"`
		Candidates      []struct {
			Parasite   string   `json:"parasite"`
			Likelihood float64  `json:"likelihood_pct"`
			Confidence float64  `json:"confidence_pct"`
			Rank       int      `json:"rank"`
			Reasons    []string `json:"reasons"`
		} `json:"candidates"`
		Groups []struct {
			Group      int     `json:"group"`
			Likelihood float64 `json:"likelihood_pct"`
		} `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "v3", resp.RuleVersion)
	assert.Equal(t, 2, resp.ReferenceRows)
	assert.Equal(t, 2, resp.PopulatedFields)
	require.Len(t, resp.Candidates, 2)

	// Giardia earns the full symptom weight and its negative blood film
	// costs nothing; malaria's positive-film profile is penalized.
	assert.Equal(t, "Giardia lamblia", resp.Candidates[0].Parasite)
	assert.Equal(t, 8.85, resp.Candidates[0].Likelihood)
	assert.Equal(t, 1, resp.Candidates[0].Rank)
	assert.Equal(t, "Plasmodium falciparum", resp.Candidates[1].Parasite)
	assert.Equal(t, -8.85, resp.Candidates[1].Likelihood)

	require.Len(t, resp.Groups, 2)
	assert.Equal(t, 2, resp.Groups[0].Group)
}

func TestServer_ScoreRejectsBadPayload(t *testing.T) {
	srv, _ := newTestServer(t, defaultTestConfig())

	req := httptest.NewRequest(http.MethodPost, "/v1/score", bytes.NewBufferString(`{"Symptoms": 42}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid findings payload")
}

func TestServer_ScorePicksUpEditedTable(t *testing.T) {
	srv, path := newTestServer(t, defaultTestConfig())

	extended := testCSV + "Entamoeba histolytica,2,,Mexico,Diarrhea,Negative,Stool microscopy\n"
	require.NoError(t, os.WriteFile(path, []byte(extended), 0o644))

	req := httptest.NewRequest(http.MethodPost, "/v1/score", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		ReferenceRows int `json:"reference_rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.ReferenceRows)
}

func TestServer_HealthAndReference(t *testing.T) {
	srv, _ := newTestServer(t, defaultTestConfig())

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"table_loaded":true`)

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reference", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var ref struct {
		Records int      `json:"records"`
		Fields  []string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ref))
	assert.Equal(t, 2, ref.Records)
	assert.Len(t, ref.Fields, 18)
}

func TestServer_OptionsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, defaultTestConfig())

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/options", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var options map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &options))
	assert.Equal(t, []string{"Bloating", "Diarrhea", "Fever", "Rigors"}, options["Symptoms"])
	assert.Equal(t, []string{"Negative", "Positive"}, options["Blood Film Result"])
}

func TestServer_RateLimiting(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.RateLimit.RPS = 1
	cfg.RateLimit.Burst = 1
	srv, _ := newTestServer(t, cfg)

	first := httptest.NewRecorder()
	srv.Router().ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	srv.Router().ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestServer_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, defaultTestConfig())

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
