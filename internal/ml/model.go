// Package ml labels feature windows as normal or anomalous using a pluggable
// unsupervised model that is refit on the whole batch on every call.
package ml

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/viniciushammett/go-log-anomaly-scan/internal/model"
)

const DefaultSensitivity = 0.01

var ErrContamination = errors.New("ml: contamination must be in (0, 1)")

// Model fits on all rows and returns, per row, an outlier label and a score
// where higher means more anomalous. contamination is the expected fraction
// of anomalous rows.
type Model interface {
	Name() string
	FitAndLabel(features [][]float64, contamination float64) ([]bool, []float64, error)
}

type Options struct {
	Trees int
	Seed  int64
}

// NewModel resolves a model by name: "iforest" (default) or "zscore".
func NewModel(name string, o Options) (Model, error) {
	switch name {
	case "", "iforest", "isolation-forest":
		return NewIsolationForest(o.Trees, o.Seed), nil
	case "zscore":
		return ZScore{}, nil
	default:
		return nil, fmt.Errorf("ml: unknown model %q", name)
	}
}

type Label struct {
	IsAnomaly bool    `json:"is_anomaly"`
	Score     float64 `json:"score"`
}

// Verdict maps window start to its label.
type Verdict map[time.Time]Label

func (v Verdict) Apply(ws []model.Window) {
	for i := range ws {
		l := v[ws[i].Start]
		ws[i].IsAnomaly = l.IsAnomaly
		ws[i].Score = l.Score
	}
}

func (v Verdict) Anomalies() int {
	n := 0
	for _, l := range v {
		if l.IsAnomaly {
			n++
		}
	}
	return n
}

type Scorer struct {
	model Model
}

func NewScorer(m Model) *Scorer {
	if m == nil {
		m = NewIsolationForest(0, 0)
	}
	return &Scorer{model: m}
}

func (s *Scorer) Model() string { return s.model.Name() }

// Score trains on (total_volume, error_count) of every window.
func (s *Scorer) Score(ws []model.Window, sensitivity float64) (Verdict, error) {
	if err := checkContamination(sensitivity); err != nil {
		return nil, err
	}
	x := make([][]float64, len(ws))
	for i, w := range ws {
		x[i] = w.Features()
	}
	labels, scores, err := s.model.FitAndLabel(x, sensitivity)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.model.Name(), err)
	}
	v := make(Verdict, len(ws))
	for i, w := range ws {
		v[w.Start] = Label{IsAnomaly: labels[i], Score: scores[i]}
	}
	return v, nil
}

func checkContamination(c float64) error {
	if !(c > 0 && c < 1) {
		return fmt.Errorf("%w: got %v", ErrContamination, c)
	}
	return nil
}

// label flags rows whose score is strictly above the (1-contamination)
// quantile. Fewer than two rows are never anomalous.
func label(scores []float64, contamination float64) []bool {
	out := make([]bool, len(scores))
	if len(scores) < 2 {
		return out
	}
	thr := quantile(scores, 1-contamination)
	for i, s := range scores {
		out[i] = s > thr
	}
	return out
}

// quantile uses linear interpolation between closest ranks.
func quantile(xs []float64, q float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	pos := q * float64(len(s)-1)
	lo, hi := int(math.Floor(pos)), int(math.Ceil(pos))
	return s[lo] + (s[hi]-s[lo])*(pos-float64(lo))
}
