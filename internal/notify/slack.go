package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/viniciushammett/go-log-anomaly-scan/internal/model"
)

type Slack struct {
	enabled bool
	webhook string
	client  *http.Client
}

func NewSlack(enabled bool, webhook string) *Slack {
	return &Slack{enabled: enabled, webhook: webhook, client: &http.Client{Timeout: 10 * time.Second}}
}

func (s *Slack) Enabled() bool { return s != nil && s.enabled && s.webhook != "" }

func (s *Slack) Send(ctx context.Context, text string) error {
	if !s.Enabled() {
		return nil
	}
	body, _ := json.Marshal(map[string]string{"text": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhook, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook: %s", resp.Status)
	}
	return nil
}

// Format renders one anomalous window as a Slack message.
func Format(modelName string, w model.Window, d time.Duration, sample string) string {
	return fmt.Sprintf(":mag: *Anomaly* `%s` window=%s (%s) volume=%d errors=%d score=%.3f\n```%s```",
		modelName, w.Start.Format("2006-01-02 15:04:05"), d, w.TotalVolume, w.ErrorCount, w.Score, sample)
}
