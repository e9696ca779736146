package posting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"minuteman/internal/logging"
	"minuteman/internal/services"
	"minuteman/internal/store"
)

// PublishFunc performs the actual irreversible post and returns where the
// message landed. It runs at most once per draft across all workers.
type PublishFunc func(ctx context.Context) (channel, messageID string, err error)

// Coordinator serializes posting through the receipt table.
type Coordinator struct {
	store        *store.Store
	logger       *slog.Logger
	waitInterval time.Duration
	waitTimeout  time.Duration
}

// Option adjusts coordinator behavior.
type Option func(*Coordinator)

// WithWaitInterval overrides how often losers poll for the winner's receipt.
func WithWaitInterval(interval time.Duration) Option {
	return func(c *Coordinator) {
		if interval > 0 {
			c.waitInterval = interval
		}
	}
}

// WithWaitTimeout overrides how long losers wait before giving up.
func WithWaitTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		if timeout > 0 {
			c.waitTimeout = timeout
		}
	}
}

// NewCoordinator builds a coordinator over the shared store.
func NewCoordinator(st *store.Store, logger *slog.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	coordinator := &Coordinator{
		store:        st,
		logger:       logging.NewComponentLogger(logger, "posting"),
		waitInterval: 50 * time.Millisecond,
		waitTimeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(coordinator)
	}
	return coordinator
}

// PostOnce posts a draft exactly once. The claim winner runs publish and
// records the receipt before returning. Losers never run publish: they wait
// for the winner's terminal receipt and return it, with a nil error when the
// winner succeeded. When the winner failed, losers get the failed receipt
// plus a retryable error so a later attempt can reclaim.
func (c *Coordinator) PostOnce(ctx context.Context, draftID string, publish PublishFunc) (*store.Receipt, error) {
	claimed, err := c.store.ClaimPosting(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return c.awaitReceipt(ctx, draftID)
	}

	channel, messageID, err := publish(ctx)
	if err != nil {
		c.logger.Warn("publish failed",
			logging.String(logging.FieldDraftID, draftID),
			logging.Error(err))
		if failErr := c.store.FailReceipt(ctx, draftID, err.Error()); failErr != nil {
			c.logger.Error("record publish failure",
				logging.String(logging.FieldDraftID, draftID),
				logging.Error(failErr))
		}
		return nil, services.Wrap(services.ErrTransient, "posting", "publish",
			fmt.Sprintf("publish draft %s", draftID), err)
	}

	if err := c.store.CompleteReceipt(ctx, draftID, channel, messageID); err != nil {
		// The post happened; a receipt write failure must not trigger a
		// second post. Surface it loudly and keep the in-memory result.
		c.logger.Error("record receipt after successful publish",
			logging.String(logging.FieldDraftID, draftID),
			logging.Error(err))
		return nil, err
	}

	c.logger.Info("draft posted",
		logging.String(logging.FieldDraftID, draftID),
		logging.String("channel", channel),
		logging.String("message_id", messageID))
	return c.store.Receipt(ctx, draftID)
}

// awaitReceipt polls until the draft's receipt leaves the posting state.
func (c *Coordinator) awaitReceipt(ctx context.Context, draftID string) (*store.Receipt, error) {
	deadline := time.Now().Add(c.waitTimeout)
	ticker := time.NewTicker(c.waitInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.store.Receipt(ctx, draftID)
		if err != nil {
			return nil, err
		}
		switch receipt.State {
		case store.ReceiptSent:
			c.logger.Debug("duplicate post suppressed",
				logging.String(logging.FieldDraftID, draftID))
			return receipt, nil
		case store.ReceiptFailed:
			return receipt, services.Wrap(services.ErrTransient, "posting", "await_receipt",
				fmt.Sprintf("winner failed to post draft %s", draftID), nil)
		}
		if time.Now().After(deadline) {
			return receipt, services.Wrap(services.ErrTransient, "posting", "await_receipt",
				fmt.Sprintf("timed out waiting for receipt on draft %s", draftID), nil)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
