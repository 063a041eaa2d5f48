package shared

import (
	"context"
	"errors"

	"github.com/vsinha/forgetrace/pkg/domain/apperr"
	"github.com/vsinha/forgetrace/pkg/domain/repositories"
	"github.com/vsinha/forgetrace/pkg/infrastructure/logger"
)

// DefaultMaxConflictRetries is used when a service is built without an explicit limit
const DefaultMaxConflictRetries = 3

// UnitOfWork runs service operations in store transactions. A transaction that
// loses an optimistic-lock race is re-run from scratch against fresh state.
type UnitOfWork struct {
	store      repositories.Store
	log        *logger.Logger
	maxRetries int
}

// NewUnitOfWork creates a unit of work over store. A negative maxRetries means
// conflicts are never retried.
func NewUnitOfWork(store repositories.Store, log *logger.Logger, maxRetries int) *UnitOfWork {
	if log == nil {
		log = logger.Discard()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &UnitOfWork{store: store, log: log, maxRetries: maxRetries}
}

// Run executes fn in a transaction, retrying conflicts. Errors leave with an
// apperr kind and op set.
func (u *UnitOfWork) Run(ctx context.Context, op string, fn func(ctx context.Context, tx repositories.Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := u.store.WithinTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repositories.ErrConcurrentModification) || apperr.GetKind(err) != apperr.KindUnknown {
			return Translate(op, err)
		}
		if attempt >= u.maxRetries {
			return apperr.ConcurrentModification(err).WithOp(op)
		}
		u.log.WithContext(ctx).ConflictRetry(op, attempt+1)
	}
}

// Translate gives err a domain kind. Domain errors keep their kind; context
// errors pass through untouched.
func Translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		if appErr.Op == "" {
			appErr.Op = op
		}
		return err
	}
	if errors.Is(err, repositories.ErrConcurrentModification) {
		return apperr.ConcurrentModification(err).WithOp(op)
	}
	if errors.Is(err, repositories.ErrNotFound) {
		return apperr.Wrap(apperr.KindNotFound, "not found", err).WithOp(op)
	}
	return apperr.Internal("unexpected storage failure", err).WithOp(op)
}

// NotFound turns a repository ErrNotFound into a NotFound naming the entity
func NotFound(err error, entity string, id int64) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return apperr.NotFound(entity, id)
	}
	return err
}
