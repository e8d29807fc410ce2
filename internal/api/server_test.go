package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viniciushammett/go-log-anomaly-scan/internal/detector"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/model"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/store"
)

const sample = `2025-11-26 10:00:05 INFO Service started
2025-11-26 10:00:30 ERROR Connection failed
2025-11-26 10:02:10 INFO ok
`

// Two years at one-second resolution is far past the default window limit.
const sparse = `2023-01-01 00:00:00 INFO a
2025-01-01 00:00:00 INFO b
`

func newServer(t *testing.T, token string) http.Handler {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "lad.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	det := detector.New(nil, st, st, nil, nil, detector.Config{})
	return NewServer(Deps{Detector: det, AuthToken: token}, Config{}).Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := do(t, newServer(t, ""), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestAnalyzeStatusCodes(t *testing.T) {
	h := newServer(t, "")
	cases := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"ok", "/v1/analyze", sample, http.StatusOK},
		{"ok with params", "/v1/analyze?window=2m&sensitivity=0.05&model=zscore", sample, http.StatusOK},
		{"no data", "/v1/analyze", "\n\nnothing to see\n", http.StatusUnprocessableEntity},
		{"bad window", "/v1/analyze?window=abc", sample, http.StatusBadRequest},
		{"zero window", "/v1/analyze?window=0s", sample, http.StatusBadRequest},
		{"nanosecond window", "/v1/analyze?window=1ns", sample, http.StatusBadRequest},
		{"fractional window", "/v1/analyze?window=1500ms", sample, http.StatusBadRequest},
		{"too many windows", "/v1/analyze?window=1s", sparse, http.StatusBadRequest},
		{"bad sensitivity", "/v1/analyze?sensitivity=1", sample, http.StatusBadRequest},
		{"bad model", "/v1/analyze?model=kmeans", sample, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, tc.target, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}

	rec := do(t, h, http.MethodPost, "/v1/analyze", "garbage only")
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "no data", body["error"])

	rec = do(t, h, http.MethodPost, "/v1/analyze?window=1s", sparse)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "too many windows")
}

func TestReportAndDrill(t *testing.T) {
	h := newServer(t, "")
	rec := do(t, h, http.MethodPost, "/v1/analyze", sample)
	require.Equal(t, http.StatusOK, rec.Code)
	var rep model.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	require.Len(t, rep.Windows, 3)
	assert.Empty(t, rep.Records)

	rec = do(t, h, http.MethodGet, "/v1/reports/"+rep.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	start := time.Date(2025, 11, 26, 10, 0, 0, 0, time.UTC).Format(time.RFC3339)
	rec = do(t, h, http.MethodGet, fmt.Sprintf("/v1/reports/%s/windows/%s/records", rep.ID, start), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var recs []model.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "2025-11-26 10:00:05 INFO Service started", recs[0].Message)
	assert.True(t, recs[1].IsError)

	empty := time.Date(2025, 11, 26, 10, 1, 0, 0, time.UTC).Format(time.RFC3339)
	rec = do(t, h, http.MethodGet, fmt.Sprintf("/v1/reports/%s/windows/%s/records", rep.ID, empty), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/reports/missing", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/reports/"+rep.ID+"/windows/yesterday/records", "").Code)
}

func TestAnomaliesList(t *testing.T) {
	h := newServer(t, "")
	rec := do(t, h, http.MethodGet, "/v1/anomalies?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/anomalies?limit=-1", "").Code)
}

func TestAuth(t *testing.T) {
	h := newServer(t, "s3cret")
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/v1/anomalies", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/v1/anomalies", "", "Authorization", "Bearer nope").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/v1/anomalies", "", "Authorization", "Bearer s3cret").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
}
