package rules

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRuleSet(t *testing.T) {
	rs := New([]RuleYAML{
		{Name: "oom", Pattern: `(?i)out of memory`},
		{Name: "timeout", Pattern: `\btimed out\b`},
		{Name: "broken", Pattern: `([`},
	})
	if len(rs.Items) != 2 {
		t.Fatalf("items=%d want 2", len(rs.Items))
	}
	if len(rs.Invalid) != 1 || rs.Invalid[0] != "broken" {
		t.Fatalf("invalid=%v", rs.Invalid)
	}
	tests := []struct {
		line string
		want bool
		rule string
	}{
		{"kernel: Out Of Memory: kill process", true, "oom"},
		{"upstream timed out after 30s", true, "timeout"},
		{"request served", false, ""},
	}
	for _, tt := range tests {
		got, name := rs.Match(tt.line)
		if got != tt.want || name != tt.rule {
			t.Fatalf("line=%q got=%v/%q want=%v/%q", tt.line, got, name, tt.want, tt.rule)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "rules.yaml")
	body := "- name: oom\n  pattern: \"(?i)out of memory\"\n  severity: critical\n"
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	rs, err := LoadFromFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(rs.Items) != 1 || rs.Items[0].Severity != "critical" {
		t.Fatalf("unexpected set %+v", rs.Items)
	}
	if rs.Digest() == "" {
		t.Fatal("expected non-empty digest")
	}

	empty, err := LoadFromFile("")
	if err != nil || len(empty.Items) != 0 || empty.Digest() != "" {
		t.Fatalf("empty path: set=%+v err=%v", empty, err)
	}
}
