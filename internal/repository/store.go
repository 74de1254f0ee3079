package repository

import (
	"context"
	"fmt"
	"log/slog"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

// Repos bundles repositories bound to the same connection or transaction.
type Repos struct {
	Receipts ReceiptRepository
	Items    ItemRepository
	Logs     LogRepository
}

// Store owns the driver and hands out repositories, optionally inside a transaction.
type Store struct {
	Repos
	drv    *entsql.Driver
	logger *slog.Logger
}

func NewStore(drv *entsql.Driver, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		Repos:  newRepos(drv, drv.Dialect(), logger),
		drv:    drv,
		logger: logger,
	}
}

func newRepos(q dialect.ExecQuerier, d string, logger *slog.Logger) Repos {
	return Repos{
		Receipts: NewReceiptRepository(q, d, logger),
		Items:    NewItemRepository(q, d, logger),
		Logs:     NewLogRepository(q, d, logger),
	}
}

// Driver exposes the underlying ent driver.
func (s *Store) Driver() *entsql.Driver { return s.drv }

// InTx runs fn with repositories bound to a single transaction. The
// transaction is committed when fn returns nil and rolled back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(Repos) error) (err error) {
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		s.logger.Error("begin transaction failed", "error", err)
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback()
			panic(v)
		}
	}()
	if err := fn(newRepos(tx, s.drv.Dialect(), s.logger)); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			s.logger.Error("rollback failed", "error", rerr)
			return fmt.Errorf("%w: rolling back transaction: %v", err, rerr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("commit failed", "error", err)
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// builder returns a dialect-aware statement builder.
func builder(d string) *entsql.DialectBuilder {
	return entsql.Dialect(d)
}

func query(ctx context.Context, q dialect.ExecQuerier, sqlStr string, args []any) (*entsql.Rows, error) {
	rows := &entsql.Rows{}
	if err := q.Query(ctx, sqlStr, args, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func exec(ctx context.Context, q dialect.ExecQuerier, sqlStr string, args []any) (int64, error) {
	var res entsql.Result
	if err := q.Exec(ctx, sqlStr, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
