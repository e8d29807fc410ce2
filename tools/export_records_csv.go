package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/viniciushammett/go-log-anomaly-scan/internal/model"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/store"
)

// Exports cached records of one fingerprint, or the persisted anomalies
// when -fingerprint is empty.
func main() {
	var (
		dbPath  = flag.String("db", "data/log-anomaly.db", "BoltDB path")
		fp      = flag.String("fingerprint", "", "source fingerprint (see -list)")
		list    = flag.Bool("list", false, "list cached fingerprints and exit")
		outPath = flag.String("out", "records.csv", "output CSV file")
	)
	flag.Parse()

	st, err := store.Open(*dbPath)
	if err != nil {
		fail("open db", err)
	}
	defer st.Close()

	if *list {
		fps, err := st.Fingerprints()
		if err != nil {
			fail("list fingerprints", err)
		}
		for _, f := range fps {
			fmt.Println(f)
		}
		return
	}

	f, err := os.Create(*outPath)
	if err != nil {
		fail("create file", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	n := 0
	if *fp != "" {
		n, err = exportRecords(w, st, *fp)
	} else {
		n, err = exportAnomalies(w, st)
	}
	if err != nil {
		fail("export", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		fail("flush csv", err)
	}
	fmt.Printf("Exported %d rows to %s\n", n, *outPath)
}

func exportRecords(w *csv.Writer, st *store.Store, fp string) (int, error) {
	if err := w.Write([]string{"timestamp", "format", "event_type_id", "is_error", "message"}); err != nil {
		return 0, err
	}
	n := 0
	var werr error
	err := st.IterateRecords(fp, func(r model.Record) bool {
		werr = w.Write([]string{
			r.Timestamp.Format("2006-01-02 15:04:05"), string(r.Format),
			strconv.Itoa(r.EventTypeID), strconv.FormatBool(r.IsError), r.Message,
		})
		if werr != nil {
			return false
		}
		n++
		return true
	})
	if err == nil {
		err = werr
	}
	return n, err
}

func exportAnomalies(w *csv.Writer, st *store.Store) (int, error) {
	if err := w.Write([]string{"when", "report_id", "window_start", "window", "total_volume", "error_count", "score", "model", "sample"}); err != nil {
		return 0, err
	}
	arr, err := st.List(0)
	if err != nil {
		return 0, err
	}
	for _, a := range arr {
		row := []string{
			a.When.UTC().Format(time.RFC3339), a.ReportID, a.WindowStart.Format("2006-01-02 15:04:05"), a.Window,
			strconv.Itoa(a.Volume), strconv.Itoa(a.Errors), strconv.FormatFloat(a.Score, 'f', 4, 64), a.Model, a.Sample,
		}
		if err := w.Write(row); err != nil {
			return 0, err
		}
	}
	return len(arr), nil
}

func fail(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}
