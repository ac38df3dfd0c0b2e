package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNoop_DoesNotPanic(t *testing.T) {
	r := Noop()
	ctx := context.Background()
	r.CacheHit(ctx)
	r.CacheMiss(ctx)
	r.Reveal(ctx)
	r.Captured(ctx)
	r.CaptureFailed(ctx)
	r.Removed(ctx, 3)
	r.Removed(ctx, 0)
}

func TestPrometheus_ExposesCounters(t *testing.T) {
	p, err := NewPrometheus()
	if err != nil {
		t.Fatalf("NewPrometheus: %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	r, err := p.Recorder()
	if err != nil {
		t.Fatalf("Recorder: %v", err)
	}
	ctx := context.Background()
	r.CacheHit(ctx)
	r.CacheHit(ctx)
	r.Removed(ctx, 4)

	rec := httptest.NewRecorder()
	p.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	for _, want := range []string{"preview", "hits", "reconcile", "removed"} {
		if !strings.Contains(text, want) {
			t.Errorf("%q missing from exposition:\n%s", want, text)
		}
	}
}
