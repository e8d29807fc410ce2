package model

import "time"

// Format identifies which timestamp grammar matched a line.
type Format string

const (
	FormatISO8601      Format = "ISO-8601"
	FormatStandard     Format = "Standard"
	FormatApacheAccess Format = "Apache Access"
	FormatApacheError  Format = "Apache Error"
	FormatSyslog       Format = "Syslog/Firewall"
	FormatHDFS         Format = "HDFS/Hadoop"
	FormatWindowsUS    Format = "Windows/US"
)

// Formats lists every label in classifier priority order.
var Formats = []Format{
	FormatISO8601, FormatStandard, FormatApacheAccess, FormatApacheError,
	FormatSyslog, FormatHDFS, FormatWindowsUS,
}

// Record is one classified log line. Timestamp carries wall-clock time in
// time.UTC; it is never converted between zones.
type Record struct {
	Timestamp   time.Time `json:"timestamp"`
	EventTypeID int       `json:"event_type_id"`
	Message     string    `json:"message"`
	IsError     bool      `json:"is_error"`
	Format      Format    `json:"format"`
}

// Window is one fixed-duration bucket of records.
type Window struct {
	Start       time.Time `json:"window_start"`
	TotalVolume int       `json:"total_volume"`
	ErrorCount  int       `json:"error_count"`
	IsAnomaly   bool      `json:"is_anomaly"`
	Score       float64   `json:"score"`
}

// Features returns the vector the anomaly models are trained on.
func (w Window) Features() []float64 {
	return []float64{float64(w.TotalVolume), float64(w.ErrorCount)}
}
