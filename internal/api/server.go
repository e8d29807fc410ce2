package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"

	"github.com/viniciushammett/go-log-anomaly-scan/internal/detector"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/ingest"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/logger"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/metrics"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/ml"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/model"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/store"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/tracing"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/window"
)

const maxBody = 64 << 20

type Deps struct {
	Log       *logger.Logger
	Detector  *detector.Detector
	AuthToken string
}
type Config struct{ Addr string }
type Server struct {
	d Deps
	c Config
}

func NewServer(d Deps, c Config) *Server {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	return &Server{d: d, c: c}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, s.d.Log.HTTPLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { metrics.Handler().ServeHTTP(w, r) })

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.auth)
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/reports/{id}", s.handleReport)
		r.Get("/reports/{id}/windows/{start}/records", s.handleDrill)
		r.Get("/anomalies", s.handleList)
	})
	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.c.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.d.Log.Info().Str("addr", s.c.Addr).Msg("api listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.d.AuthToken != "" {
			got := r.Header.Get("Authorization")
			if !strings.HasPrefix(got, "Bearer ") || strings.TrimPrefix(got, "Bearer ") != s.d.AuthToken {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.Tracer().Start(r.Context(), "POST /v1/analyze")
	defer span.End()

	p, err := params(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	span.SetAttributes(
		attribute.String("window", p.Window.String()),
		attribute.Float64("sensitivity", p.Sensitivity),
		attribute.String("model", p.Model),
	)

	opts := detector.Options{Notify: true, WithRecords: r.URL.Query().Get("records") == "true"}
	rep, err := s.d.Detector.Analyze(ctx, http.MaxBytesReader(w, r.Body, maxBody), p, opts)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, rep)
	case errors.Is(err, ingest.ErrNoData):
		writeError(w, http.StatusUnprocessableEntity, "no data")
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "body too large")
	case errors.Is(err, ml.ErrContamination), errors.Is(err, window.ErrBadDuration), errors.Is(err, window.ErrTooManyWindows):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.d.Log.Error().Err(err).Msg("analyze")
		writeError(w, http.StatusInternalServerError, "analysis failed")
	}
}

func params(r *http.Request) (model.Params, error) {
	var p model.Params
	q := r.URL.Query()
	if v := q.Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return p, errors.New("invalid window")
		}
		if err := window.CheckDuration(d); err != nil {
			return p, err
		}
		p.Window = d
	}
	if v := q.Get("sensitivity"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || !(f > 0 && f < 1) {
			return p, errors.New("invalid sensitivity: must be in (0, 1)")
		}
		p.Sensitivity = f
	}
	if v := q.Get("model"); v != "" {
		if _, err := ml.NewModel(v, ml.Options{}); err != nil {
			return p, err
		}
		p.Model = v
	}
	return p, nil
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.Tracer().Start(r.Context(), "GET /v1/reports/{id}")
	defer span.End()

	rep, err := s.d.Detector.Report(chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleDrill(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.Tracer().Start(r.Context(), "GET /v1/reports/{id}/windows/{start}/records")
	defer span.End()

	start, err := time.Parse(time.RFC3339, chi.URLParam(r, "start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be RFC3339")
		return
	}
	recs, err := s.d.Detector.Drill(ctx, chi.URLParam(r, "id"), start)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "report not found")
	case errors.Is(err, detector.ErrNotCached):
		writeError(w, http.StatusGone, "records no longer cached")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		if recs == nil {
			recs = []model.Record{}
		}
		span.SetAttributes(attribute.Int("records", len(recs)))
		writeJSON(w, http.StatusOK, recs)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.Tracer().Start(r.Context(), "GET /v1/anomalies")
	defer span.End()

	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	arr, err := s.d.Detector.Anomalies(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, arr)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
