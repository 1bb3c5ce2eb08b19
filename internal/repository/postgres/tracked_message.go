package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/service/ledger"
)

// TrackedMessageRepo implements ledger.Repository against PostgreSQL.
type TrackedMessageRepo struct{ db *sql.DB }

// NewTrackedMessageRepo creates a Postgres-backed ledger repository.
func NewTrackedMessageRepo(db *sql.DB) *TrackedMessageRepo { return &TrackedMessageRepo{db: db} }

func (r *TrackedMessageRepo) Insert(ctx context.Context, m *domain.TrackedMessage) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO mail_tracked_messages (token, recipient_id, send_attempted, sent, opened, created_at)
		VALUES ($1, $2, $3, FALSE, FALSE, $4)
		RETURNING id
	`, m.Token, m.RecipientID, m.SendAttempted, m.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert tracked message: %w", err)
	}
	return id, nil
}

func (r *TrackedMessageRepo) MarkSent(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE mail_tracked_messages SET sent = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark sent rows: %w", err)
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// MarkOpened flips opened with a conditional UPDATE so concurrent fetches
// race on the row lock and only the first one writes opened_at.
func (r *TrackedMessageRepo) MarkOpened(ctx context.Context, token string, at time.Time) (time.Time, error) {
	var openedAt time.Time
	err := r.db.QueryRowContext(ctx, `
		UPDATE mail_tracked_messages
		SET opened = TRUE, opened_at = $2
		WHERE token = $1 AND opened = FALSE
		RETURNING opened_at
	`, token, at).Scan(&openedAt)
	if err == nil {
		return openedAt, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("mark opened: %w", err)
	}

	// Already opened, or no such token.
	var stored sql.NullTime
	err = r.db.QueryRowContext(ctx,
		`SELECT opened_at FROM mail_tracked_messages WHERE token = $1`, token).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ledger.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read opened_at: %w", err)
	}
	return stored.Time, nil
}

const selectMessage = `
	SELECT m.id, m.token, m.recipient_id, COALESCE(r.email, ''), COALESCE(r.name, ''),
	       m.send_attempted, m.sent, m.opened, m.opened_at, m.created_at
	FROM mail_tracked_messages m
	LEFT JOIN mail_recipients r ON r.id = m.recipient_id`

func (r *TrackedMessageRepo) Get(ctx context.Context, id int64) (*domain.TrackedMessage, error) {
	return r.getOne(ctx, selectMessage+` WHERE m.id = $1`, id)
}

func (r *TrackedMessageRepo) GetByToken(ctx context.Context, token string) (*domain.TrackedMessage, error) {
	return r.getOne(ctx, selectMessage+` WHERE m.token = $1`, token)
}

func (r *TrackedMessageRepo) getOne(ctx context.Context, q string, arg interface{}) (*domain.TrackedMessage, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tracked message: %w", err)
	}
	return m, nil
}

func (r *TrackedMessageRepo) ListByIDs(ctx context.Context, ids []int64) ([]domain.TrackedMessage, error) {
	rows, err := r.db.QueryContext(ctx, selectMessage+` WHERE m.id = ANY($1) ORDER BY m.id`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("list tracked messages: %w", err)
	}
	defer rows.Close()

	var out []domain.TrackedMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tracked message: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(s rowScanner) (*domain.TrackedMessage, error) {
	var m domain.TrackedMessage
	var openedAt sql.NullTime
	if err := s.Scan(
		&m.ID, &m.Token, &m.RecipientID, &m.RecipientEmail, &m.RecipientName,
		&m.SendAttempted, &m.Sent, &m.Opened, &openedAt, &m.CreatedAt,
	); err != nil {
		return nil, err
	}
	if openedAt.Valid {
		t := openedAt.Time
		m.OpenedAt = &t
	}
	return &m, nil
}
