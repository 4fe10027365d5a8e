package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const journalTable = "lead_journal"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// pgxQuerier is the subset of *pgxpool.Pool the journal uses.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresJournal stores entries in the lead_journal table.
type PostgresJournal struct {
	pool pgxQuerier
	now  func() time.Time
}

func NewPostgresJournal(pool *pgxpool.Pool) *PostgresJournal {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return newPostgresJournalWithExec(pool)
}

func newPostgresJournalWithExec(exec pgxQuerier) *PostgresJournal {
	if exec == nil {
		panic("events: exec required")
	}
	return &PostgresJournal{pool: exec, now: time.Now}
}

func (j *PostgresJournal) Record(ctx context.Context, entry Entry) (uuid.UUID, error) {
	entry, err := prepare(entry, j.now())
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: new journal id: %w", err)
	}
	lead, err := json.Marshal(entry.Lead)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: marshal lead: %w", err)
	}

	query, args, err := psql.Insert(journalTable).
		Columns("id", "lead", "method", "primary_error", "created_at").
		Values(entry.ID, lead, entry.Method, entry.PrimaryError, entry.CreatedAt).
		ToSql()
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: build insert: %w", err)
	}
	if _, err := j.pool.Exec(ctx, query, args...); err != nil {
		return uuid.Nil, fmt.Errorf("events: insert journal: %w", err)
	}
	return entry.ID, nil
}

func (j *PostgresJournal) Pending(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query, args, err := psql.Select("id", "lead", "method", "primary_error", "created_at").
		From(journalTable).
		Where(sq.Eq{"processed_at": nil}).
		OrderBy("created_at").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("events: build select: %w", err)
	}

	rows, err := j.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var lead []byte
		if err := rows.Scan(&entry.ID, &lead, &entry.Method, &entry.PrimaryError, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan journal: %w", err)
		}
		if err := json.Unmarshal(lead, &entry.Lead); err != nil {
			return nil, fmt.Errorf("events: decode lead %s: %w", entry.ID, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (j *PostgresJournal) MarkProcessed(ctx context.Context, id uuid.UUID) (bool, error) {
	query, args, err := psql.Update(journalTable).
		Set("processed_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id, "processed_at": nil}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("events: build update: %w", err)
	}
	ct, err := j.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

var _ Journal = (*PostgresJournal)(nil)
