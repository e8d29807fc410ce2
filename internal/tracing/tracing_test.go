package tracing

import (
	"context"
	"testing"

	"github.com/viniciushammett/go-log-anomaly-scan/internal/config"
)

func TestInitDisabled(t *testing.T) {
	closeFn, err := Init(context.Background(), config.Tracing{Enabled: false}, "test")
	if err != nil {
		t.Fatal(err)
	}
	if err := closeFn(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, span := Tracer().Start(context.Background(), "noop")
	span.End()
}
