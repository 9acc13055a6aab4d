package service

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"ledger-core/internal/audit"
	"ledger-core/internal/domain"
	"ledger-core/internal/errors"
	"ledger-core/internal/events"
)

// RetryOptions bounds how often a commit is re-attempted after the store
// reports a concurrent modification.
type RetryOptions struct {
	MaxRetries int
	Interval   time.Duration
}

func DefaultRetryOptions() RetryOptions {
	return RetryOptions{MaxRetries: 5, Interval: 10 * time.Millisecond}
}

// buildFunc reads a fresh snapshot of the accounts involved, validates the
// operation against it and returns the unit to commit.
type buildFunc func(ctx context.Context) (*domain.UnitOfWork, error)

type committer struct {
	store     domain.LedgerStore
	trail     *audit.Trail
	publisher events.Publisher
	locks     *accountLocks
	retry     RetryOptions
	logger    *slog.Logger
}

func newCommitter(store domain.LedgerStore, trail *audit.Trail, publisher events.Publisher, logger *slog.Logger, retry RetryOptions) *committer {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &committer{
		store:     store,
		trail:     trail,
		publisher: publisher,
		locks:     newAccountLocks(),
		retry:     retry,
		logger:    logger,
	}
}

// commit runs build and ApplyAtomic under the account locks, starting over
// from a fresh read whenever the store reports a version conflict.
func (c *committer) commit(ctx context.Context, accountIDs []string, build buildFunc) (*domain.UnitOfWork, error) {
	unlock := c.locks.Lock(accountIDs...)
	defer unlock()

	var committed *domain.UnitOfWork
	attempt := 0

	operation := func() error {
		attempt++

		unit, err := build(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}

		if err := c.store.ApplyAtomic(ctx, unit); err != nil {
			if stderrors.Is(err, errors.ErrConflict) {
				c.logger.Warn("Commit conflict, retrying", "accounts", accountIDs, "attempt", attempt)
				return err
			}
			return backoff.Permanent(err)
		}

		committed = unit
		return nil
	}

	if err := backoff.Retry(operation, c.backOff(ctx)); err != nil {
		if stderrors.Is(err, errors.ErrConflict) {
			c.logger.Error("Commit abandoned after repeated conflicts", "accounts", accountIDs, "attempts", attempt)
			return nil, errors.ErrContention.WithDetails(err.Error())
		}
		return nil, err
	}

	return committed, nil
}

func (c *committer) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.retry.Interval
	exp.MaxInterval = 50 * c.retry.Interval
	exp.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.retry.MaxRetries)), ctx)
}

// record writes the audit fingerprint and the committed event for one
// transaction. Both are best-effort: the ledger change is already durable,
// so failures are logged and the fingerprint comes back empty.
func (c *committer) record(ctx context.Context, tx domain.Transaction, meta domain.RoutingMetadata) string {
	var fingerprint string

	if c.trail != nil {
		entry, err := c.trail.Record(ctx, tx.ID, tx.CreatedAt, meta)
		if err != nil {
			c.logger.Error("Audit fingerprint missing for committed transaction",
				"transaction_id", tx.ID, "error", err)
		} else {
			fingerprint = entry.Fingerprint
		}
	}

	if err := c.publisher.Publish(ctx, events.NewTransactionCommitted(tx, fingerprint)); err != nil {
		c.logger.Error("Failed to publish transaction event", "transaction_id", tx.ID, "error", err)
	}

	return fingerprint
}

func routing(from, to *domain.Account) domain.RoutingMetadata {
	var meta domain.RoutingMetadata
	if from != nil {
		meta.FromUserID = strPtr(from.UserID)
		meta.FromAccountID = strPtr(from.ID)
		meta.FromAccountNumber = strPtr(from.AccountNumber)
	}
	if to != nil {
		meta.ToUserID = strPtr(to.UserID)
		meta.ToAccountID = strPtr(to.ID)
		meta.ToAccountNumber = strPtr(to.AccountNumber)
	}
	return meta
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
