package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/pantry-receipts/constants"
	"github.com/joseph-ayodele/pantry-receipts/internal/entity"
)

const logEntriesTable = "log_entries"

var logEntryColumns = []string{"id", "timestamp", "level", "module", "function", "message", "details"}

type LogRepository interface {
	Insert(ctx context.Context, e *entity.LogEntry) error
	// List returns newest entries first, optionally filtered by level.
	List(ctx context.Context, level *constants.LogLevel, offset, limit int) ([]*entity.LogEntry, error)
}

type logRepository struct {
	q       dialect.ExecQuerier
	dialect string
	logger  *slog.Logger
}

func NewLogRepository(q dialect.ExecQuerier, d string, logger *slog.Logger) LogRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &logRepository{q: q, dialect: d, logger: logger}
}

func (r *logRepository) Insert(ctx context.Context, e *entity.LogEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	var details any
	if e.Details != "" {
		details = e.Details
	}
	q, args := builder(r.dialect).Insert(logEntriesTable).
		Columns(logEntryColumns...).
		Values(e.ID, e.Timestamp, string(e.Level), e.Module, e.Function, e.Message, details).
		Query()
	if _, err := exec(ctx, r.q, q, args); err != nil {
		// must not go through the audit sink again
		r.logger.Error("failed to persist log entry", "module", e.Module, "error", err)
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

func (r *logRepository) List(ctx context.Context, level *constants.LogLevel, offset, limit int) ([]*entity.LogEntry, error) {
	sel := builder(r.dialect).Select(logEntryColumns...).
		From(entsql.Table(logEntriesTable)).
		OrderBy(entsql.Desc("timestamp"))
	if level != nil {
		sel = sel.Where(entsql.EQ("level", string(*level)))
	}
	if limit > 0 || offset > 0 {
		sel = sel.Limit(pageLimit(limit))
	}
	if offset > 0 {
		sel = sel.Offset(offset)
	}
	q, args := sel.Query()
	rows, err := query(ctx, r.q, q, args)
	if err != nil {
		r.logger.Error("failed to list log entries", "error", err)
		return nil, fmt.Errorf("list log entries: %w", err)
	}
	defer rows.Close()

	var out []*entity.LogEntry
	for rows.Next() {
		var (
			e       entity.LogEntry
			lvl     string
			details entsql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &lvl, &e.Module, &e.Function, &e.Message, &details); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		e.Level = constants.LogLevel(lvl)
		e.Details = details.String
		out = append(out, &e)
	}
	return out, rows.Err()
}
