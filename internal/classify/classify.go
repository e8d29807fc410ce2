// Package classify extracts a timestamp, a source format and an error flag
// from a single raw log line.
package classify

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/viniciushammett/go-log-anomaly-scan/internal/model"
	"github.com/viniciushammett/go-log-anomaly-scan/internal/rules"
)

// grammar pairs a pattern with the strict parser that validates its match.
// Grammars are probed in slice order and the first one that parses wins, so
// the tighter patterns must come before the looser ones.
type grammar struct {
	format model.Format
	re     *regexp.Regexp
	parse  func(m []string, year int) (time.Time, error)
}

var grammars = []grammar{
	{
		format: model.FormatISO8601,
		re:     regexp.MustCompile(`(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2})`),
		parse:  layout("2006-01-02T15:04:05"),
	},
	{
		format: model.FormatStandard,
		re:     regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})`),
		parse:  layout("2006-01-02 15:04:05"),
	},
	{
		format: model.FormatApacheAccess,
		re:     regexp.MustCompile(`\[(\d{2}/[A-Za-z]{3}/\d{4}:\d{2}:\d{2}:\d{2})`),
		parse:  layout("02/Jan/2006:15:04:05"),
	},
	{
		format: model.FormatApacheError,
		re:     regexp.MustCompile(`\[([A-Z][a-z]{2} [A-Z][a-z]{2} \d{2} \d{2}:\d{2}:\d{2} \d{4})\]`),
		parse:  layout("Mon Jan 02 15:04:05 2006"),
	},
	{
		format: model.FormatSyslog,
		re:     regexp.MustCompile(`^([A-Z][a-z]{2}\s+\d{1,2}\s\d{2}:\d{2}:\d{2})`),
		parse:  parseSyslog,
	},
	{
		format: model.FormatHDFS,
		re:     regexp.MustCompile(`^(\d{6})\s(\d{6})`),
		parse: func(m []string, _ int) (time.Time, error) {
			return time.ParseInLocation("060102 150405", m[1]+" "+m[2], time.UTC)
		},
	},
	{
		format: model.FormatWindowsUS,
		re:     regexp.MustCompile(`^(\d{1,2}/\d{1,2}/\d{4})\s(\d{2}:\d{2}:\d{2})`),
		parse: func(m []string, _ int) (time.Time, error) {
			return time.ParseInLocation("1/2/2006 15:04:05", m[1]+" "+m[2], time.UTC)
		},
	},
}

func layout(l string) func([]string, int) (time.Time, error) {
	return func(m []string, _ int) (time.Time, error) {
		return time.ParseInLocation(l, m[1], time.UTC)
	}
}

// parseSyslog fills in the reference year, which syslog omits. Parsing with
// the year in place makes Feb 29 fail on non-leap years instead of rolling
// over to March.
func parseSyslog(m []string, year int) (time.Time, error) {
	fields := strings.Join(strings.Fields(m[1]), " ")
	return time.ParseInLocation("2006 Jan 2 15:04:05", strconv.Itoa(year)+" "+fields, time.UTC)
}

// Grammars returns the format labels in probe order.
func Grammars() []model.Format {
	out := make([]model.Format, len(grammars))
	for i, g := range grammars {
		out[i] = g.format
	}
	return out
}

var errorKeywords = []string{
	"ERROR", "FAIL", "CRITICAL", "REFUSED", "DENIED", "UNAUTHORIZED", "FATAL", "EXCEPTION",
}

var httpStatusRE = regexp.MustCompile(`\s(\d{3})\s`)

// Result is the outcome of classifying one line.
type Result struct {
	Timestamp time.Time
	Format    model.Format
	IsError   bool
	Rule      string // extra rule that flagged the line, if any
}

// Classifier matches lines against the known timestamp formats and error
// keywords. It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	year  int
	rules *rules.Set
}

// Option configures a Classifier built by New.
type Option func(*Classifier)

// WithYear sets the year assumed for syslog lines.
func WithYear(year int) Option {
	return func(c *Classifier) {
		if year > 0 {
			c.year = year
		}
	}
}

// WithClock derives the syslog year from now().
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) { c.year = now().Year() }
}

// WithRules adds user-defined error patterns.
func WithRules(rs *rules.Set) Option {
	return func(c *Classifier) { c.rules = rs }
}

// New returns a classifier whose syslog year defaults to the current year.
func New(opts ...Option) *Classifier {
	c := &Classifier{year: time.Now().Year()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Year reports the year assumed for syslog lines.
func (c *Classifier) Year() int { return c.year }

// Classify returns ok=false when no grammar yields a valid timestamp.
func (c *Classifier) Classify(line string) (Result, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Result{}, false
	}
	for _, g := range grammars {
		ts, ok := g.match(line, c.year)
		if !ok {
			continue
		}
		res := Result{Timestamp: ts, Format: g.format, IsError: hasErrorSignal(line)}
		if matched, name := c.rules.Match(line); matched {
			res.IsError = true
			res.Rule = name
		}
		return res, true
	}
	return Result{}, false
}

// Classify uses a classifier with default options.
func Classify(line string) (Result, bool) { return New().Classify(line) }

func (g grammar) match(line string, year int) (time.Time, bool) {
	m := g.re.FindStringSubmatch(line)
	if m == nil {
		return time.Time{}, false
	}
	ts, err := g.parse(m, year)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func hasErrorSignal(line string) bool {
	upper := strings.ToUpper(line)
	for _, kw := range errorKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	if strings.Contains(line, "HTTP") {
		if m := httpStatusRE.FindStringSubmatch(line); m != nil {
			if code, err := strconv.Atoi(m[1]); err == nil && code >= 400 {
				return true
			}
		}
	}
	return false
}
