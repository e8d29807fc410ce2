// Package drilldown maps a window back to the records that fall inside it.
package drilldown

import (
	"sort"
	"time"

	"github.com/viniciushammett/go-log-anomaly-scan/internal/model"
)

// RecordsInWindow returns the records with start <= ts < start+d in
// chronological order. Records sharing a timestamp keep their input order.
func RecordsInWindow(start time.Time, d time.Duration, records []model.Record) []model.Record {
	end := start.Add(d)
	var out []model.Record
	for _, r := range records {
		if !r.Timestamp.Before(start) && r.Timestamp.Before(end) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Index answers repeated window lookups over one record set.
type Index struct {
	sorted []model.Record
}

func NewIndex(records []model.Record) *Index {
	s := append([]model.Record(nil), records...)
	sort.SliceStable(s, func(i, j int) bool { return s[i].Timestamp.Before(s[j].Timestamp) })
	return &Index{sorted: s}
}

func (ix *Index) Len() int { return len(ix.sorted) }

func (ix *Index) RecordsInWindow(start time.Time, d time.Duration) []model.Record {
	end := start.Add(d)
	lo := sort.Search(len(ix.sorted), func(i int) bool { return !ix.sorted[i].Timestamp.Before(start) })
	hi := sort.Search(len(ix.sorted), func(i int) bool { return !ix.sorted[i].Timestamp.Before(end) })
	if lo >= hi {
		return nil
	}
	return append([]model.Record(nil), ix.sorted[lo:hi]...)
}
