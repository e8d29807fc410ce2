package model

import "time"

type Params struct {
	Window      time.Duration `json:"window"`
	Sensitivity float64       `json:"sensitivity"`
	Model       string        `json:"model"`
}

type Summary struct {
	Records        int            `json:"records"`
	LinesRead      int            `json:"lines_read"`
	LinesDropped   int            `json:"lines_dropped"`
	TotalWindows   int            `json:"total_windows"`
	AnomalyCount   int            `json:"anomaly_count"`
	ErrorCount     int            `json:"error_count"`
	ErrorRate      float64        `json:"error_rate"`
	DominantFormat Format         `json:"dominant_format"`
	Formats        map[Format]int `json:"formats"`
}

type Template struct {
	ID       int    `json:"id"`
	Template string `json:"template"`
	Size     int    `json:"size"`
}

// Report is the outcome of one analysis run. Records are not embedded; they
// are kept once per source fingerprint and joined on drill-down.
type Report struct {
	ID          string     `json:"id"`
	Fingerprint string     `json:"fingerprint"`
	CreatedAt   time.Time  `json:"created_at"`
	Cached      bool       `json:"cached"`
	Params      Params     `json:"params"`
	Summary     Summary    `json:"summary"`
	Windows     []Window   `json:"windows"`
	Templates   []Template `json:"templates,omitempty"`
	Records     []Record   `json:"records,omitempty"`
}

// Anomalous returns the windows labeled anomalous, in order.
func (r *Report) Anomalous() []Window {
	var out []Window
	for _, w := range r.Windows {
		if w.IsAnomaly {
			out = append(out, w)
		}
	}
	return out
}
