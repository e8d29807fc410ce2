package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// RuleYAML is one entry of the rules file. A line matching Pattern is
// flagged as an error in addition to the built-in keyword checks.
type RuleYAML struct {
	Name     string `yaml:"name"`
	Pattern  string `yaml:"pattern"`  // regex
	Severity string `yaml:"severity"` // warn|error|critical, informational only
}

type Rule struct {
	Name     string
	RE       *regexp.Regexp
	Severity string
}

type Set struct {
	Items   []Rule
	Invalid []string // names of rules whose pattern did not compile
}

// Empty returns a set that never matches.
func Empty() *Set { return &Set{} }

func LoadFromFile(path string) (*Set, error) {
	if path == "" {
		return Empty(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []RuleYAML
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	return New(raw), nil
}

func New(raw []RuleYAML) *Set {
	out := &Set{}
	for _, r := range raw {
		re, err := regexp.Compile(r.Pattern)
		if err != nil || r.Pattern == "" {
			out.Invalid = append(out.Invalid, r.Name)
			continue
		}
		out.Items = append(out.Items, Rule{Name: r.Name, RE: re, Severity: r.Severity})
	}
	return out
}

func (s *Set) Match(line string) (matched bool, ruleName string) {
	if s == nil {
		return false, ""
	}
	for _, r := range s.Items {
		if r.RE.MatchString(line) {
			return true, r.Name
		}
	}
	return false, ""
}

// Digest identifies the compiled rule set; cached classifications are only
// reused under the same digest.
func (s *Set) Digest() string {
	if s == nil || len(s.Items) == 0 {
		return ""
	}
	h := sha256.New()
	for _, r := range s.Items {
		h.Write([]byte(r.Name))
		h.Write([]byte{0})
		h.Write([]byte(r.RE.String()))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
