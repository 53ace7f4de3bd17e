package refile_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"refile-go/internal/refile"
	"refile-go/internal/testutil"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveAttempt(provider, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, provider+":"+outcome)
}

func TestFallbackChain_Ordering(t *testing.T) {
	a := testutil.NewFailingBackend("a", errors.New("a is down"))
	b := testutil.NewFakeBackend("b", 0)
	c := testutil.NewFakeBackend("c", 0)
	obs := &recordingObserver{}

	chain := refile.NewFallbackChain([]refile.Backend{a, b, c}, time.Second, nil)
	chain.SetObserver(obs)

	res, err := chain.Upload(context.Background(), []byte("data"), "d.txt", "text/plain")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if res.Provider != "b" || res.URL != "fake://b/1" || res.ID != "1" {
		t.Errorf("Upload() = %+v", res)
	}
	if a.Calls() != 1 || b.Calls() != 1 || c.Calls() != 0 {
		t.Errorf("calls a=%d b=%d c=%d, want 1 1 0", a.Calls(), b.Calls(), c.Calls())
	}
	want := "a:failure,b:success"
	if got := strings.Join(obs.outcomes, ","); got != want {
		t.Errorf("observed %s, want %s", got, want)
	}
}

func TestFallbackChain_SizeSkip(t *testing.T) {
	small := testutil.NewFakeBackend("small", 4)
	big := testutil.NewFakeBackend("big", 0)
	chain := refile.NewFallbackChain([]refile.Backend{small, big}, 0, nil)

	res, err := chain.Upload(context.Background(), []byte("12345"), "f", "text/plain")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if res.Provider != "big" {
		t.Errorf("Provider = %s, want big", res.Provider)
	}
	if small.Calls() != 0 {
		t.Errorf("oversized upload reached the small backend %d times", small.Calls())
	}

	t.Run("exact ceiling is not skipped", func(t *testing.T) {
		res, err := chain.Upload(context.Background(), []byte("1234"), "f", "text/plain")
		if err != nil {
			t.Fatalf("Upload() error = %v", err)
		}
		if res.Provider != "small" {
			t.Errorf("Provider = %s, want small", res.Provider)
		}
	})
}

func TestFallbackChain_AllFail(t *testing.T) {
	chain := refile.NewFallbackChain([]refile.Backend{
		testutil.NewFakeBackend("tiny", 1),
		testutil.NewFailingBackend("broken", errors.New("HTTP 503")),
	}, 0, nil)

	_, err := chain.Upload(context.Background(), []byte("too big"), "f", "text/plain")

	var chainErr *refile.ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("Upload() error = %v, want *ChainError", err)
	}
	if len(chainErr.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(chainErr.Attempts))
	}
	if !chainErr.Attempts[0].Skipped || chainErr.Attempts[1].Skipped {
		t.Errorf("skip flags = %v %v", chainErr.Attempts[0].Skipped, chainErr.Attempts[1].Skipped)
	}
	msg := err.Error()
	for _, part := range []string{"tiny", "skipped", "broken", "HTTP 503"} {
		if !strings.Contains(msg, part) {
			t.Errorf("error %q should mention %q", msg, part)
		}
	}
}

func TestFallbackChain_Empty(t *testing.T) {
	chain := refile.NewFallbackChain(nil, 0, nil)
	_, err := chain.Upload(context.Background(), []byte("x"), "f", "text/plain")
	if err == nil || !strings.Contains(err.Error(), "no backends configured") {
		t.Errorf("Upload() error = %v", err)
	}
}

func TestFallbackChain_AttemptTimeout(t *testing.T) {
	slow := testutil.NewFakeBackend("slow", 0)
	slow.Block = true
	fast := testutil.NewFakeBackend("fast", 0)
	chain := refile.NewFallbackChain([]refile.Backend{slow, fast}, 20*time.Millisecond, nil)

	res, err := chain.Upload(context.Background(), []byte("x"), "f", "text/plain")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if res.Provider != "fast" {
		t.Errorf("Provider = %s, want fast", res.Provider)
	}
}

func TestFallbackChain_ParentCancelled(t *testing.T) {
	b := testutil.NewFakeBackend("b", 0)
	chain := refile.NewFallbackChain([]refile.Backend{b}, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := chain.Upload(ctx, []byte("x"), "f", "text/plain")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Upload() error = %v, want context.Canceled", err)
	}
	if b.Calls() != 0 {
		t.Errorf("backend called %d times after cancellation", b.Calls())
	}
}

func TestFallbackChain_Lookup(t *testing.T) {
	b := testutil.NewFakeBackend("b", 0)
	chain := refile.NewFallbackChain([]refile.Backend{b}, 0, nil)

	if chain.Lookup("b") != b {
		t.Error("Lookup(b) did not return the backend")
	}
	if chain.Lookup("missing") != nil {
		t.Error("Lookup(missing) should be nil")
	}
}
