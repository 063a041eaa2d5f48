package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vsinha/forgetrace/pkg/domain/repositories"
	"github.com/vsinha/forgetrace/pkg/infrastructure/logger"
)

// Store runs units of work in database transactions
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// Verify interface compliance
var _ repositories.Store = (*Store)(nil)

// NewStore creates a store over db
func NewStore(db *sql.DB, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Discard()
	}
	return &Store{db: db, log: log}
}

// WithinTx runs fn in a transaction and commits when fn returns nil
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repositories.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.log.WithContext(ctx).DatabaseError("begin", err)
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(ctx, &tx{q: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		s.log.WithContext(ctx).DatabaseError("commit", err)
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type tx struct {
	q *sql.Tx
}

func (t *tx) Heats() repositories.HeatRepository             { return &HeatRepository{q: t.q} }
func (t *tx) Batches() repositories.StageBatchRepository     { return &StageBatchRepository{q: t.q} }
func (t *tx) Allocations() repositories.AllocationRepository { return &AllocationRepository{q: t.q} }
func (t *tx) Resources() repositories.ResourceRepository     { return &ResourceRepository{q: t.q} }

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// notFound maps an empty result to repositories.ErrNotFound
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repositories.ErrNotFound
	}
	return err
}

// checkVersioned turns an update that matched no row into a lost race
func checkVersioned(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repositories.ErrConcurrentModification
	}
	return nil
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func fromNullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}
