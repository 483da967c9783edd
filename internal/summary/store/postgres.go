package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"splitgroups/internal/summary/models"
	"splitgroups/pkg/platform/sentinel"
)

// PostgresStore persists summaries with pgx. Derived and aggregate fields are
// written by separate single-statement upserts, each touching only its own
// columns, so concurrent group writes and expense events never clobber each other.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// ReplaceDerivedFields is versioned by the group's updatedAt: a snapshot older
// than the stored one is dropped, so a slow writer never rolls derived fields back.
func (s *PostgresStore) ReplaceDerivedFields(ctx context.Context, groupID string, fields models.DerivedFields) error {
	const query = `
		INSERT INTO group_summaries (group_id, name, description, members, members_count, owner_id, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (group_id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			members = EXCLUDED.members,
			members_count = EXCLUDED.members_count,
			owner_id = EXCLUDED.owner_id,
			image_url = EXCLUDED.image_url,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
		WHERE group_summaries.updated_at IS NULL
			OR group_summaries.updated_at <= EXCLUDED.updated_at
	`
	members := fields.Members
	if members == nil {
		members = []string{}
	}
	_, err := s.pool.Exec(ctx, query,
		groupID,
		fields.Name,
		fields.Description,
		members,
		fields.MembersCount(),
		fields.Owner,
		fields.ImageURL,
		fields.CreatedAt,
		fields.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("replace summary derived fields: %w", err)
	}
	return nil
}

func (s *PostgresStore) IncrementAggregateFields(ctx context.Context, groupID string, delta models.AggregateDelta) error {
	const query = `
		INSERT INTO group_summaries (group_id, total_amount, expenses_count, last_expense_at, currency, expenses_stale)
		VALUES ($1, $2::numeric, $3, $4, COALESCE($5::text, 'EUR'), FALSE)
		ON CONFLICT (group_id) DO UPDATE SET
			total_amount = group_summaries.total_amount + EXCLUDED.total_amount,
			expenses_count = group_summaries.expenses_count + EXCLUDED.expenses_count,
			last_expense_at = COALESCE(EXCLUDED.last_expense_at, group_summaries.last_expense_at),
			currency = COALESCE($5::text, group_summaries.currency),
			expenses_stale = FALSE
	`
	var currency *string
	if delta.Currency != "" {
		currency = &delta.Currency
	}
	_, err := s.pool.Exec(ctx, query,
		groupID,
		delta.Amount.String(),
		delta.Count,
		delta.LastExpenseAt,
		currency,
	)
	if err != nil {
		return fmt.Errorf("increment summary aggregates: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByGroupID(ctx context.Context, groupID string) (*models.GroupSummary, error) {
	const query = `
		SELECT group_id, name, description, members, members_count, owner_id, image_url,
			created_at, updated_at, total_amount::text, expenses_count, last_expense_at,
			currency, expenses_stale
		FROM group_summaries
		WHERE group_id = $1
	`
	var (
		summary   models.GroupSummary
		createdAt *time.Time
		updatedAt *time.Time
		total     string
	)
	err := s.pool.QueryRow(ctx, query, groupID).Scan(
		&summary.GroupID,
		&summary.Name,
		&summary.Description,
		&summary.Members,
		&summary.MembersCount,
		&summary.Owner,
		&summary.ImageURL,
		&createdAt,
		&updatedAt,
		&total,
		&summary.ExpensesCount,
		&summary.LastExpenseAt,
		&summary.Currency,
		&summary.ExpensesStale,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find summary: %w", err)
	}
	if createdAt != nil {
		summary.CreatedAt = *createdAt
	}
	if updatedAt != nil {
		summary.UpdatedAt = *updatedAt
	}
	if summary.Members == nil {
		summary.Members = []string{}
	}
	summary.TotalAmount, err = decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("parse summary total %q: %w", total, err)
	}
	return &summary, nil
}

func (s *PostgresStore) Delete(ctx context.Context, groupID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM group_summaries WHERE group_id = $1`, groupID); err != nil {
		return fmt.Errorf("delete summary: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListGroupIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT group_id FROM group_summaries ORDER BY group_id`)
	if err != nil {
		return nil, fmt.Errorf("list summary ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect summary ids: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) MarkStale(ctx context.Context, groupID string) error {
	if _, err := s.pool.Exec(ctx, `UPDATE group_summaries SET expenses_stale = TRUE WHERE group_id = $1`, groupID); err != nil {
		return fmt.Errorf("mark summary stale: %w", err)
	}
	return nil
}
