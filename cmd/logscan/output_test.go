package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/viniciushammett/go-log-anomaly-scan/internal/model"
)

func report() *model.Report {
	t0 := time.Date(2025, 11, 26, 10, 0, 0, 0, time.UTC)
	return &model.Report{
		ID:     "r1",
		Params: model.Params{Window: time.Minute, Sensitivity: 0.01, Model: "iforest"},
		Summary: model.Summary{
			Records: 3, LinesRead: 4, LinesDropped: 1, TotalWindows: 2, AnomalyCount: 1,
			ErrorCount: 1, ErrorRate: 1.0 / 3, DominantFormat: model.FormatStandard,
		},
		Windows: []model.Window{
			{Start: t0, TotalVolume: 1},
			{Start: t0.Add(time.Minute), TotalVolume: 2, ErrorCount: 1, IsAnomaly: true, Score: 0.8},
		},
		Records: []model.Record{
			{Timestamp: t0.Add(5 * time.Second), Message: "a"},
			{Timestamp: t0.Add(70 * time.Second), Message: "c ERROR", IsError: true},
			{Timestamp: t0.Add(65 * time.Second), Message: "b"},
		},
	}
}

func TestRenderText(t *testing.T) {
	rep := report()
	var buf bytes.Buffer
	if err := renderText(&buf, rep, drillAnomalies(rep)); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"Detected format: Standard",
		"dropped: 1",
		"error rate: 33.33%",
		"2025-11-26 10:01:00",
		"== 2025-11-26 10:01:00 (2 records)",
		"! c ERROR",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "  b\n") > strings.Index(out, "! c ERROR") {
		t.Error("drill records not chronological")
	}
}

func TestRenderJSONWithDrill(t *testing.T) {
	rep := report()
	var buf bytes.Buffer
	if err := renderJSON(&buf, rep, drillAnomalies(rep)); err != nil {
		t.Fatal(err)
	}
	var got struct {
		ID    string `json:"id"`
		Drill []struct {
			Records []model.Record `json:"records"`
		} `json:"drill"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != "r1" || len(got.Drill) != 1 || len(got.Drill[0].Records) != 2 {
		t.Fatalf("json %s", buf.String())
	}
}
