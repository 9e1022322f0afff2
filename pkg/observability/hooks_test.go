package observability

import (
	"context"
	"testing"
	"time"
)

type recordingResolverHooks struct {
	NoopResolverHooks
	starts    int
	completes int
}

func (h *recordingResolverHooks) OnPackageStart(context.Context, string, string) { h.starts++ }
func (h *recordingResolverHooks) OnPackageComplete(context.Context, string, string, int, bool, time.Duration, error) {
	h.completes++
}

type recordingCacheHooks struct {
	NoopCacheHooks
	hits int
}

func (h *recordingCacheHooks) OnCacheHit(context.Context, string) { h.hits++ }

func TestSetAndGetHooks(t *testing.T) {
	defer Reset()

	rh := &recordingResolverHooks{}
	SetResolverHooks(rh)

	ctx := context.Background()
	Resolver().OnPackageStart(ctx, "newtonsoft.json", "13.0.3")
	Resolver().OnPackageComplete(ctx, "newtonsoft.json", "13.0.3", 1, false, time.Second, nil)

	if rh.starts != 1 || rh.completes != 1 {
		t.Errorf("hooks not invoked: starts=%d completes=%d", rh.starts, rh.completes)
	}
}

func TestSetNilHooksKeepsCurrent(t *testing.T) {
	defer Reset()

	ch := &recordingCacheHooks{}
	SetCacheHooks(ch)
	SetCacheHooks(nil)

	Cache().OnCacheHit(context.Background(), "pkg")
	if ch.hits != 1 {
		t.Errorf("nil registration should keep existing hooks, hits=%d", ch.hits)
	}
}

func TestReset(t *testing.T) {
	rh := &recordingResolverHooks{}
	SetResolverHooks(rh)
	Reset()

	Resolver().OnPackageStart(context.Background(), "pkg", "1.0.0")
	if rh.starts != 0 {
		t.Error("Reset should restore no-op hooks")
	}
}

func TestDefaultsAreNoop(t *testing.T) {
	Reset()
	ctx := context.Background()

	// Must not panic.
	Resolver().OnResolveStart(ctx, "run", "net8.0", 2)
	Resolver().OnResolveComplete(ctx, "run", 2, 5, time.Second, nil)
	Cache().OnCacheMiss(ctx, "pkg")
	Cache().OnExtract(ctx, "pkg", 10, 2048)
	HTTP().OnRequest(ctx, "GET", "api.nuget.org", "/v3-flatcontainer/")
	HTTP().OnResponse(ctx, "GET", "api.nuget.org", "/", 200, time.Millisecond)
	HTTP().OnError(ctx, "GET", "api.nuget.org", "/", context.Canceled)
}
