package posting_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"minuteman/internal/posting"
	"minuteman/internal/services"
	"minuteman/internal/store"
	"minuteman/internal/testsupport"
)

func TestPostOnceSingleInvocationUnderContention(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	coordinator := posting.NewCoordinator(st, nil,
		posting.WithWaitInterval(5*time.Millisecond),
		posting.WithWaitTimeout(5*time.Second))

	var publishes atomic.Int64
	publish := func(ctx context.Context) (string, string, error) {
		publishes.Add(1)
		time.Sleep(20 * time.Millisecond)
		return "#minutes", "167000.123", nil
	}

	const workers = 12
	var wg sync.WaitGroup
	receipts := make([]*store.Receipt, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			receipts[i], errs[i] = coordinator.PostOnce(context.Background(), "draft-1", publish)
		}(i)
	}
	wg.Wait()

	if got := publishes.Load(); got != 1 {
		t.Fatalf("expected exactly one publish, got %d", got)
	}
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d failed: %v", i, errs[i])
		}
		if receipts[i] == nil || !receipts[i].Sent() || receipts[i].MessageID != "167000.123" {
			t.Fatalf("worker %d got unexpected receipt: %#v", i, receipts[i])
		}
	}
}

func TestPostOnceSuppressesAfterSent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	coordinator := posting.NewCoordinator(st, nil)
	ctx := context.Background()

	first := func(ctx context.Context) (string, string, error) {
		return "#minutes", "1.0", nil
	}
	if _, err := coordinator.PostOnce(ctx, "draft-1", first); err != nil {
		t.Fatalf("first PostOnce failed: %v", err)
	}

	second := func(ctx context.Context) (string, string, error) {
		t.Fatal("publish must not run for a sent draft")
		return "", "", nil
	}
	receipt, err := coordinator.PostOnce(ctx, "draft-1", second)
	if err != nil {
		t.Fatalf("second PostOnce failed: %v", err)
	}
	if !receipt.Sent() || receipt.MessageID != "1.0" {
		t.Fatalf("unexpected receipt: %#v", receipt)
	}
}

func TestPostOnceFailureAllowsRetry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	coordinator := posting.NewCoordinator(st, nil)
	ctx := context.Background()

	boom := errors.New("slack 500")
	failing := func(ctx context.Context) (string, string, error) {
		return "", "", boom
	}
	if _, err := coordinator.PostOnce(ctx, "draft-1", failing); !services.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}

	receipt, err := st.Receipt(ctx, "draft-1")
	if err != nil {
		t.Fatalf("Receipt failed: %v", err)
	}
	if receipt.State != store.ReceiptFailed {
		t.Fatalf("expected failed receipt, got %#v", receipt)
	}

	succeeding := func(ctx context.Context) (string, string, error) {
		return "#minutes", "2.0", nil
	}
	receipt, err = coordinator.PostOnce(ctx, "draft-1", succeeding)
	if err != nil {
		t.Fatalf("retry PostOnce failed: %v", err)
	}
	if !receipt.Sent() || receipt.MessageID != "2.0" {
		t.Fatalf("unexpected receipt after retry: %#v", receipt)
	}
}

func TestPostOnceLoserSeesWinnerFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	coordinator := posting.NewCoordinator(st, nil,
		posting.WithWaitInterval(5*time.Millisecond),
		posting.WithWaitTimeout(time.Second))
	ctx := context.Background()

	if _, err := st.ClaimPosting(ctx, "draft-1"); err != nil {
		t.Fatalf("ClaimPosting failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := coordinator.PostOnce(ctx, "draft-1", func(ctx context.Context) (string, string, error) {
			t.Error("loser must not publish")
			return "", "", nil
		})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := st.FailReceipt(ctx, "draft-1", "winner crashed"); err != nil {
		t.Fatalf("FailReceipt failed: %v", err)
	}

	if err := <-done; !services.IsRetryable(err) {
		t.Fatalf("expected retryable error from loser, got %v", err)
	}
}
