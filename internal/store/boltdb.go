package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/viniciushammett/go-log-anomaly-scan/internal/ingest"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/model"
)

var (
	bAnoms   = []byte("anomalies")
	bRecords = []byte("records") // one sub-bucket per source fingerprint
	bReports = []byte("reports")

	kMeta = []byte("meta")
	bRows = []byte("rows")
)

var ErrNotFound = errors.New("store: not found")

type Store struct{ db *bolt.DB }

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bAnoms, bRecords, bReports} {
			if _, e := tx.CreateBucketIfNotExists(b); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// -------- Anomalies --------

// Anomaly is one window labeled anomalous by a run.
type Anomaly struct {
	ID          string    `json:"id"`
	When        time.Time `json:"when"`
	ReportID    string    `json:"report_id"`
	Fingerprint string    `json:"fingerprint"`
	WindowStart time.Time `json:"window_start"`
	Window      string    `json:"window"`
	Volume      int       `json:"total_volume"`
	Errors      int       `json:"error_count"`
	Score       float64   `json:"score"`
	Model       string    `json:"model"`
	Sample      string    `json:"sample"`
}

// keys sort by creation time so List can walk newest first
func anomalyKey(a Anomaly) []byte {
	return []byte(a.When.UTC().Format(time.RFC3339Nano) + "|" + a.ID)
}

func (s *Store) PutAnomaly(a Anomaly) error {
	j, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bAnoms).Put(anomalyKey(a), j)
	})
}

func (s *Store) List(limit int) ([]Anomaly, error) {
	out := []Anomaly{}
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bAnoms).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var a Anomaly
			if json.Unmarshal(v, &a) == nil {
				out = append(out, a)
				if limit > 0 && len(out) >= limit {
					break
				}
			}
		}
		return nil
	})
	return out, err
}

// -------- Reports --------

func (s *Store) PutReport(r *model.Report) error {
	cp := *r
	cp.Records = nil
	j, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bReports).Put([]byte(r.ID), j)
	})
}

func (s *Store) GetReport(id string) (*model.Report, error) {
	var r model.Report
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bReports).Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// -------- Record cache --------

type recordsMeta struct {
	LinesRead int       `json:"lines_read"`
	Dropped   int       `json:"lines_dropped"`
	Stored    time.Time `json:"stored"`
}

func seqKey(i int) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(i))
	return k
}

// PutRecords replaces whatever was cached under key.
func (s *Store) PutRecords(_ context.Context, key string, res *ingest.Result) error {
	meta, err := json.Marshal(recordsMeta{LinesRead: res.LinesRead, Dropped: res.Dropped, Stored: time.Now()})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bRecords)
		if root.Bucket([]byte(key)) != nil {
			if err := root.DeleteBucket([]byte(key)); err != nil {
				return err
			}
		}
		b, err := root.CreateBucket([]byte(key))
		if err != nil {
			return err
		}
		if err := b.Put(kMeta, meta); err != nil {
			return err
		}
		rows, err := b.CreateBucket(bRows)
		if err != nil {
			return err
		}
		for i, r := range res.Records {
			j, err := json.Marshal(r)
			if err != nil {
				return err
			}
			if err := rows.Put(seqKey(i), j); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetRecords returns ok=false on a cache miss.
func (s *Store) GetRecords(_ context.Context, key string) (*ingest.Result, bool, error) {
	var res *ingest.Result
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bRecords).Bucket([]byte(key))
		if b == nil {
			return nil
		}
		var meta recordsMeta
		if err := json.Unmarshal(b.Get(kMeta), &meta); err != nil {
			return fmt.Errorf("records %s meta: %w", key, err)
		}
		out := &ingest.Result{LinesRead: meta.LinesRead, Dropped: meta.Dropped}
		err := b.Bucket(bRows).ForEach(func(_, v []byte) error {
			var r model.Record
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out.Records = append(out.Records, r)
			return nil
		})
		if err != nil {
			return err
		}
		res = out
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return res, res != nil, nil
}

// IterateRecords walks the cached records of key in ingestion order.
func (s *Store) IterateRecords(key string, fn func(r model.Record) bool) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bRecords).Bucket([]byte(key))
		if b == nil {
			return ErrNotFound
		}
		c := b.Bucket(bRows).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var r model.Record
			if json.Unmarshal(v, &r) != nil {
				continue
			}
			if !fn(r) {
				break
			}
		}
		return nil
	})
}

// Fingerprints lists the keys of the record cache.
func (s *Store) Fingerprints() ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bRecords).ForEach(func(k, v []byte) error {
			if v == nil {
				out = append(out, string(k))
			}
			return nil
		})
	})
	return out, err
}
