package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/viniciushammett/go-log-anomaly-scan/internal/classify"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/metrics"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/model"
)

// ErrNoData is returned when no line of the source produced a record.
var ErrNoData = errors.New("no data: no line carried a recognizable timestamp")

// maxLineSize bounds a single line; longer lines are counted as dropped.
const maxLineSize = 4 << 20

// Assigner maps a line to its template id. Implementations may keep state
// across calls and are invoked in line order.
type Assigner interface {
	Assign(line string) int
}

type Result struct {
	Records   []model.Record `json:"records"`
	LinesRead int            `json:"lines_read"`
	Dropped   int            `json:"lines_dropped"`
}

type Ingest struct {
	cls *classify.Classifier
}

func New(cls *classify.Classifier) *Ingest {
	if cls == nil {
		cls = classify.New()
	}
	return &Ingest{cls: cls}
}

// Run reads r line by line. Byte order marks select UTF-8 or UTF-16 decoding;
// anything else is read as UTF-8 with invalid bytes replaced. Lines over
// maxLineSize are dropped without being buffered whole.
func (i *Ingest) Run(ctx context.Context, r io.Reader, as Assigner) (*Result, error) {
	dec := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	lr := newLineReader(dec, maxLineSize)

	res := &Result{}
	for {
		b, long, err := lr.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", res.LinesRead+1, err)
		}
		if res.LinesRead%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		res.LinesRead++
		if long {
			res.Dropped++
			continue
		}
		line := string(b)
		c, ok := i.cls.Classify(line)
		if !ok {
			res.Dropped++
			continue
		}
		msg := strings.TrimSpace(line)
		res.Records = append(res.Records, model.Record{
			Timestamp:   c.Timestamp,
			EventTypeID: as.Assign(msg),
			Message:     msg,
			IsError:     c.IsError,
			Format:      c.Format,
		})
		metrics.RecordsByFormat.WithLabelValues(string(c.Format)).Inc()
	}
	metrics.LinesRead.Add(float64(res.LinesRead))
	metrics.LinesDropped.Add(float64(res.Dropped))
	if len(res.Records) == 0 {
		return res, ErrNoData
	}
	return res, nil
}

func (i *Ingest) FromFile(ctx context.Context, path string, as Assigner) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return i.Run(ctx, f, as)
}
