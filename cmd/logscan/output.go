package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/viniciushammett/go-log-anomaly-scan/internal/drilldown"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/ingest"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/model"
)

const tsLayout = "2006-01-02 15:04:05"

type windowRecords struct {
	WindowStart time.Time      `json:"window_start"`
	Records     []model.Record `json:"records"`
}

func drillAnomalies(rep *model.Report) []windowRecords {
	ix := drilldown.NewIndex(rep.Records)
	var out []windowRecords
	for _, w := range rep.Anomalous() {
		out = append(out, windowRecords{WindowStart: w.Start, Records: ix.RecordsInWindow(w.Start, rep.Params.Window)})
	}
	return out
}

func renderJSON(w io.Writer, rep *model.Report, drills []windowRecords) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if drills == nil {
		return enc.Encode(rep)
	}
	return enc.Encode(struct {
		*model.Report
		Drill []windowRecords `json:"drill"`
	}{rep, drills})
}

func renderText(w io.Writer, rep *model.Report, drills []windowRecords) error {
	s := rep.Summary
	fmt.Fprintf(w, "Detected format: %s\n", s.DominantFormat)
	fmt.Fprintf(w, "Lines read: %d  records: %d  dropped: %d\n", s.LinesRead, s.Records, s.LinesDropped)
	fmt.Fprintf(w, "Windows: %d  anomalies: %d  error rate: %.2f%%\n", s.TotalWindows, s.AnomalyCount, s.ErrorRate*100)
	fmt.Fprintf(w, "Model: %s  window: %s  sensitivity: %g  cached: %t  report: %s\n\n",
		rep.Params.Model, rep.Params.Window, rep.Params.Sensitivity, rep.Cached, rep.ID)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WINDOW_START\tTOTAL_VOLUME\tERROR_COUNT\tSCORE\tANOMALY")
	for _, win := range rep.Windows {
		mark := ""
		if win.IsAnomaly {
			mark = "yes"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.3f\t%s\n", win.Start.Format(tsLayout), win.TotalVolume, win.ErrorCount, win.Score, mark)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, d := range drills {
		fmt.Fprintf(w, "\n== %s (%d records)\n", d.WindowStart.Format(tsLayout), len(d.Records))
		for _, r := range d.Records {
			flag := " "
			if r.IsError {
				flag = "!"
			}
			fmt.Fprintf(w, "%s %s\n", flag, r.Message)
		}
	}
	return nil
}

func renderTemplates(w io.Writer, ts []model.Template, res *ingest.Result) error {
	fmt.Fprintf(w, "Lines read: %d  records: %d  dropped: %d  templates: %d\n\n", res.LinesRead, len(res.Records), res.Dropped, len(ts))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOUNT\tTEMPLATE")
	for _, t := range ts {
		fmt.Fprintf(tw, "%d\t%d\t%s\n", t.ID, t.Size, t.Template)
	}
	return tw.Flush()
}
