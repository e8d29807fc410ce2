package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/viniciushammett/go-log-anomaly-scan/internal/model"
)

func TestSendPostsText(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	if err := NewSlack(true, srv.URL).Send(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if got["text"] != "hello" {
		t.Fatalf("payload %v", got)
	}
}

func TestSendDisabled(t *testing.T) {
	for _, s := range []*Slack{nil, NewSlack(false, "http://127.0.0.1:1"), NewSlack(true, "")} {
		if err := s.Send(context.Background(), "x"); err != nil {
			t.Fatalf("disabled notifier returned %v", err)
		}
	}
}

func TestSendStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	if err := NewSlack(true, srv.URL).Send(context.Background(), "x"); err == nil {
		t.Fatal("expected error on 403")
	}
}

func TestFormat(t *testing.T) {
	w := model.Window{Start: time.Date(2025, 11, 26, 10, 1, 0, 0, time.UTC), TotalVolume: 3, ErrorCount: 3, Score: 0.71}
	msg := Format("iforest", w, time.Minute, "ERROR boom")
	for _, want := range []string{"`iforest`", "2025-11-26 10:01:00", "volume=3", "errors=3", "score=0.710", "ERROR boom"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q lacks %q", msg, want)
		}
	}
}
