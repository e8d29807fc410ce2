package detector

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/viniciushammett/go-log-anomaly-scan/internal/classify"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/drain"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/drilldown"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/ingest"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/logger"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/metrics"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/ml"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/model"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/notify"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/rules"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/store"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/tracing"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/window"
)

// ErrNotCached is returned by Drill when the records behind a report are no
// longer in the record cache.
var ErrNotCached = errors.New("detector: records not cached")

// RecordCache memoizes ingestion results by source fingerprint.
// Both *store.Store and *cache.RedisCache satisfy it.
type RecordCache interface {
	GetRecords(ctx context.Context, key string) (*ingest.Result, bool, error)
	PutRecords(ctx context.Context, key string, res *ingest.Result) error
}

type Config struct {
	Defaults   model.Params
	SyslogYear int // 0 = current year
	Drain      drain.Config
	Model      ml.Options
	// MaxWindows caps the window grid of one run; 0 means window.DefaultMaxWindows.
	MaxWindows int
	// TopTemplates bounds Report.Templates; 0 means 20.
	TopTemplates int
}

type Detector struct {
	log   *logger.Logger
	db    *store.Store
	cache RecordCache
	rs    *rules.Set
	slack *notify.Slack
	cfg   Config

	tracer trace.Tracer
	now    func() time.Time
}

// New wires a detector. db, cache and slack may be nil, in which case the
// step that needs them is skipped.
func New(log *logger.Logger, db *store.Store, cache RecordCache, rs *rules.Set, slack *notify.Slack, cfg Config) *Detector {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Defaults.Window == 0 {
		cfg.Defaults.Window = window.DefaultDuration
	}
	if cfg.Defaults.Sensitivity == 0 {
		cfg.Defaults.Sensitivity = ml.DefaultSensitivity
	}
	if cfg.Defaults.Model == "" {
		cfg.Defaults.Model = "iforest"
	}
	if cfg.TopTemplates == 0 {
		cfg.TopTemplates = 20
	}
	return &Detector{
		log: log, db: db, cache: cache, rs: rs, slack: slack, cfg: cfg,
		tracer: tracing.Tracer(), now: time.Now,
	}
}

// Options tune one Analyze call.
type Options struct {
	NoCache     bool // bypass the record cache for lookup and store
	WithRecords bool // embed the classified records in the returned report
	Notify      bool // send anomalous windows to Slack
}

// Params fills zero fields of p with the configured defaults.
func (d *Detector) Params(p model.Params) model.Params {
	if p.Window == 0 {
		p.Window = d.cfg.Defaults.Window
	}
	if p.Sensitivity == 0 {
		p.Sensitivity = d.cfg.Defaults.Sensitivity
	}
	if p.Model == "" {
		p.Model = d.cfg.Defaults.Model
	}
	return p
}

func (d *Detector) classifier() *classify.Classifier {
	return classify.New(classify.WithYear(d.cfg.SyslogYear), classify.WithRules(d.rs))
}

// Fingerprint identifies a source for the record cache. The syslog year and
// the rule set change classification, and the template settings change the
// event ids, so all of them are part of the key.
func Fingerprint(src []byte, year int, rulesDigest string, tc drain.Config) string {
	tc = tc.Normalized()
	h := sha256.New()
	h.Write(src)
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(year)))
	h.Write([]byte{0})
	h.Write([]byte(rulesDigest))
	h.Write([]byte{0})
	fmt.Fprintf(h, "drain:%d/%g/%d", tc.Depth, tc.Similarity, tc.MaxChildren)
	return hex.EncodeToString(h.Sum(nil))
}

// Analyze runs one batch: ingest (or reuse cached records), bucket, score,
// persist and notify. ingest.ErrNoData is returned wrapped.
func (d *Detector) Analyze(ctx context.Context, r io.Reader, p model.Params, o Options) (*model.Report, error) {
	start := d.now()
	ctx, span := d.tracer.Start(ctx, "detector.Analyze")
	defer span.End()

	p = d.Params(p)
	if err := window.CheckDuration(p.Window); err != nil {
		return nil, err
	}
	scorerModel, err := ml.NewModel(p.Model, d.cfg.Model)
	if err != nil {
		return nil, err
	}

	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	cls := d.classifier()
	fp := Fingerprint(src, cls.Year(), d.rs.Digest(), d.cfg.Drain)
	span.SetAttributes(attribute.String("fingerprint", fp), attribute.Int("bytes", len(src)))

	res, cached, err := d.records(ctx, fp, src, cls, o)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ingest.ErrNoData) {
			return nil, fmt.Errorf("analyze %s: %w", fp[:12], err)
		}
		return nil, err
	}

	ws, err := window.BuildMax(res.Records, p.Window, d.cfg.MaxWindows)
	if err != nil {
		return nil, err
	}
	_, sspan := d.tracer.Start(ctx, "detector.Score")
	verdict, err := ml.NewScorer(scorerModel).Score(ws, p.Sensitivity)
	sspan.End()
	if err != nil {
		return nil, err
	}
	verdict.Apply(ws)
	metrics.Windows.Add(float64(len(ws)))

	rep := &model.Report{
		ID:          uuid.NewString(),
		Fingerprint: fp,
		CreatedAt:   start.UTC(),
		Cached:      cached,
		Params:      p,
		Summary:     summarize(res, ws),
		Windows:     ws,
		Templates:   d.templates(res.Records),
	}
	if o.WithRecords {
		rep.Records = res.Records
	}
	span.SetAttributes(attribute.Int("windows", len(ws)), attribute.Int("anomalies", rep.Summary.AnomalyCount))

	if d.db != nil {
		if err := d.db.PutReport(rep); err != nil {
			d.log.Error().Err(err).Str("report", rep.ID).Msg("persist report")
		}
	}
	if anomalous := rep.Anomalous(); len(anomalous) > 0 {
		ix := drilldown.NewIndex(res.Records)
		for _, w := range anomalous {
			d.raise(ctx, rep, w, ix, o.Notify)
		}
	}

	metrics.AnalysisDuration.Observe(d.now().Sub(start).Seconds())
	d.log.Info().Str("report", rep.ID).Str("fingerprint", fp[:12]).Bool("cached", cached).
		Int("records", rep.Summary.Records).Int("dropped", rep.Summary.LinesDropped).
		Int("windows", len(ws)).Int("anomalies", rep.Summary.AnomalyCount).
		Str("model", p.Model).Msg("analysis done")
	return rep, nil
}

func (d *Detector) records(ctx context.Context, fp string, src []byte, cls *classify.Classifier, o Options) (*ingest.Result, bool, error) {
	useCache := d.cache != nil && !o.NoCache
	if useCache {
		res, ok, err := d.cache.GetRecords(ctx, fp)
		switch {
		case err != nil:
			metrics.CacheLookups.WithLabelValues("error").Inc()
			d.log.Warn().Err(err).Msg("record cache lookup failed")
		case ok:
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return res, true, nil
		default:
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
	}

	ctx, span := d.tracer.Start(ctx, "detector.Ingest")
	defer span.End()
	res, err := ingest.New(cls).Run(ctx, bytes.NewReader(src), drain.New(d.cfg.Drain))
	if err != nil {
		return nil, false, err
	}
	span.SetAttributes(attribute.Int("lines", res.LinesRead), attribute.Int("records", len(res.Records)))
	if useCache {
		if err := d.cache.PutRecords(ctx, fp, res); err != nil {
			d.log.Warn().Err(err).Msg("record cache store failed")
		}
	}
	return res, false, nil
}

// templates replays the record messages through a fresh miner, which gives
// the same ids ingestion assigned since the miner is deterministic.
func (d *Detector) templates(records []model.Record) []model.Template {
	m := drain.New(d.cfg.Drain)
	for _, r := range records {
		m.Assign(r.Message)
	}
	cs := m.Clusters()
	if len(cs) > d.cfg.TopTemplates {
		cs = cs[:d.cfg.TopTemplates]
	}
	out := make([]model.Template, len(cs))
	for i, c := range cs {
		out[i] = model.Template{ID: c.ID, Template: c.Template(), Size: c.Size}
	}
	return out
}

// Templates ingests r without scoring and returns every discovered template.
func (d *Detector) Templates(ctx context.Context, r io.Reader) ([]model.Template, *ingest.Result, error) {
	m := drain.New(d.cfg.Drain)
	res, err := ingest.New(d.classifier()).Run(ctx, r, m)
	if err != nil {
		return nil, res, err
	}
	cs := m.Clusters()
	out := make([]model.Template, len(cs))
	for i, c := range cs {
		out[i] = model.Template{ID: c.ID, Template: c.Template(), Size: c.Size}
	}
	return out, res, nil
}

// Drill returns the records of a stored report that fall in the window
// starting at start.
func (d *Detector) Drill(ctx context.Context, reportID string, start time.Time) ([]model.Record, error) {
	if d.db == nil {
		return nil, store.ErrNotFound
	}
	rep, err := d.db.GetReport(reportID)
	if err != nil {
		return nil, err
	}
	if d.cache == nil {
		return nil, ErrNotCached
	}
	res, ok, err := d.cache.GetRecords(ctx, rep.Fingerprint)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotCached
	}
	return drilldown.NewIndex(res.Records).RecordsInWindow(start.UTC(), rep.Params.Window), nil
}

// Anomalies lists persisted anomalous windows, newest first.
func (d *Detector) Anomalies(limit int) ([]store.Anomaly, error) {
	if d.db == nil {
		return []store.Anomaly{}, nil
	}
	return d.db.List(limit)
}

// Report loads a stored report.
func (d *Detector) Report(id string) (*model.Report, error) {
	if d.db == nil {
		return nil, store.ErrNotFound
	}
	return d.db.GetReport(id)
}

func (d *Detector) raise(ctx context.Context, rep *model.Report, w model.Window, ix *drilldown.Index, notifySlack bool) {
	sample := ""
	if recs := ix.RecordsInWindow(w.Start, rep.Params.Window); len(recs) > 0 {
		sample = recs[0].Message
		for _, r := range recs {
			if r.IsError {
				sample = r.Message
				break
			}
		}
	}
	metrics.Anomalies.WithLabelValues(rep.Params.Model).Inc()
	if d.db != nil {
		a := store.Anomaly{
			ID: uuid.NewString(), When: d.now().UTC(), ReportID: rep.ID, Fingerprint: rep.Fingerprint,
			WindowStart: w.Start, Window: rep.Params.Window.String(), Volume: w.TotalVolume,
			Errors: w.ErrorCount, Score: w.Score, Model: rep.Params.Model, Sample: sample,
		}
		if err := d.db.PutAnomaly(a); err != nil {
			d.log.Error().Err(err).Msg("persist anomaly")
		}
	}
	if notifySlack {
		if err := d.slack.Send(ctx, notify.Format(rep.Params.Model, w, rep.Params.Window, sample)); err != nil {
			d.log.Warn().Err(err).Msg("slack notification failed")
		}
	}
	d.log.Warn().Str("report", rep.ID).Time("window", w.Start).Int("volume", w.TotalVolume).
		Int("errors", w.ErrorCount).Float64("score", w.Score).Msg("anomaly")
}

func summarize(res *ingest.Result, ws []model.Window) model.Summary {
	s := model.Summary{
		Records:      len(res.Records),
		LinesRead:    res.LinesRead,
		LinesDropped: res.Dropped,
		TotalWindows: len(ws),
		Formats:      map[model.Format]int{},
	}
	for _, r := range res.Records {
		s.Formats[r.Format]++
		if r.IsError {
			s.ErrorCount++
		}
	}
	for _, w := range ws {
		if w.IsAnomaly {
			s.AnomalyCount++
		}
	}
	if s.Records > 0 {
		s.ErrorRate = float64(s.ErrorCount) / float64(s.Records)
	}
	s.DominantFormat = dominant(s.Formats)
	return s
}

// dominant returns the most frequent format. Ties go to the label that sorts
// first, as a statistical mode over the labels would.
func dominant(counts map[model.Format]int) model.Format {
	var best model.Format
	n := 0
	for f, c := range counts {
		if c > n || (c == n && f < best) {
			best, n = f, c
		}
	}
	return best
}
