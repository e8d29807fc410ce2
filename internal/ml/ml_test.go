package ml

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/viniciushammett/go-log-anomaly-scan/internal/model"
)

var t0 = time.Date(2025, 11, 26, 10, 0, 0, 0, time.UTC)

// steadyWithSpike returns n one-minute windows of steady traffic and one
// burst of volume and errors at index spike.
func steadyWithSpike(n, spike int) []model.Window {
	ws := make([]model.Window, n)
	for i := range ws {
		ws[i] = model.Window{Start: t0.Add(time.Duration(i) * time.Minute), TotalVolume: 20 + i%3, ErrorCount: i % 2}
	}
	ws[spike].TotalVolume = 400
	ws[spike].ErrorCount = 150
	return ws
}

func TestIsolationForestFlagsSpike(t *testing.T) {
	ws := steadyWithSpike(120, 77)
	v, err := NewScorer(NewIsolationForest(0, 0)).Score(ws, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != len(ws) {
		t.Fatalf("verdict size %d want %d", len(v), len(ws))
	}
	if !v[ws[77].Start].IsAnomaly {
		t.Fatalf("spike not flagged, score=%f", v[ws[77].Start].Score)
	}
	// 1% of 120 windows: the spike plus at most one other
	if n := v.Anomalies(); n < 1 || n > 2 {
		t.Fatalf("anomalies=%d", n)
	}
	for _, w := range ws {
		if w.Start.Equal(ws[77].Start) {
			continue
		}
		if v[w.Start].Score >= v[ws[77].Start].Score {
			t.Fatalf("window %s scored above the spike", w.Start)
		}
	}
}

func TestScoreDeterministic(t *testing.T) {
	ws := steadyWithSpike(90, 10)
	for _, m := range []Model{NewIsolationForest(50, 7), ZScore{}} {
		a, err := NewScorer(m).Score(ws, 0.05)
		if err != nil {
			t.Fatal(err)
		}
		b, err := NewScorer(m).Score(ws, 0.05)
		if err != nil {
			t.Fatal(err)
		}
		for k, la := range a {
			if lb := b[k]; la != lb {
				t.Fatalf("%s: window %s differs: %+v vs %+v", m.Name(), k, la, lb)
			}
		}
	}
}

func TestDegenerateInput(t *testing.T) {
	for _, n := range []int{0, 1} {
		ws := steadyWithSpike(3, 0)[:n]
		v, err := NewScorer(nil).Score(ws, 0.01)
		if err != nil {
			t.Fatal(err)
		}
		if len(v) != n || v.Anomalies() != 0 {
			t.Fatalf("n=%d verdict=%v", n, v)
		}
	}
	flat := make([]model.Window, 30)
	for i := range flat {
		flat[i] = model.Window{Start: t0.Add(time.Duration(i) * time.Minute), TotalVolume: 5}
	}
	v, err := NewScorer(nil).Score(flat, 0.05)
	if err != nil {
		t.Fatal(err)
	}
	if v.Anomalies() != 0 {
		t.Fatalf("identical windows produced %d anomalies", v.Anomalies())
	}
}

func TestContaminationBounds(t *testing.T) {
	ws := steadyWithSpike(10, 3)
	for _, c := range []float64{0, -0.1, 1, 1.5, math.NaN()} {
		if _, err := NewScorer(nil).Score(ws, c); !errors.Is(err, ErrContamination) {
			t.Fatalf("c=%v err=%v", c, err)
		}
	}
}

func TestZScoreFlagsSpike(t *testing.T) {
	ws := steadyWithSpike(60, 30)
	v, err := NewScorer(ZScore{}).Score(ws, 0.02)
	if err != nil {
		t.Fatal(err)
	}
	if !v[ws[30].Start].IsAnomaly || v.Anomalies() != 1 {
		t.Fatalf("spike=%+v anomalies=%d", v[ws[30].Start], v.Anomalies())
	}
}

func TestVerdictApply(t *testing.T) {
	ws := steadyWithSpike(5, 2)
	v := Verdict{ws[2].Start: {IsAnomaly: true, Score: 0.9}}
	v.Apply(ws)
	for i, w := range ws {
		if w.IsAnomaly != (i == 2) {
			t.Fatalf("window %d anomaly=%v", i, w.IsAnomaly)
		}
	}
	if ws[2].Score != 0.9 {
		t.Fatalf("score=%f", ws[2].Score)
	}
}

func TestNewModel(t *testing.T) {
	for name, want := range map[string]string{"": "iforest", "iforest": "iforest", "zscore": "zscore"} {
		m, err := NewModel(name, Options{})
		if err != nil || m.Name() != want {
			t.Fatalf("name=%q model=%v err=%v", name, m, err)
		}
	}
	if _, err := NewModel("svm", Options{}); err == nil {
		t.Fatal("expected error for unknown model")
	}
}

func TestQuantile(t *testing.T) {
	xs := []float64{4, 1, 3, 2}
	if q := quantile(xs, 0.5); q != 2.5 {
		t.Fatalf("median=%v", q)
	}
	if q := quantile(xs, 1); q != 4 {
		t.Fatalf("max=%v", q)
	}
}
