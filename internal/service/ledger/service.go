package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailtrack/internal/domain"
)

// Service owns message identity and timestamps and delegates storage to a
// Repository. All methods are safe for concurrent use.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a ledger backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create records a send attempt to r. The message starts unsent and unopened
// and gets a fresh random tracking token.
func (s *Service) Create(ctx context.Context, r domain.Recipient) (*domain.TrackedMessage, error) {
	m := &domain.TrackedMessage{
		Token:          uuid.NewString(),
		RecipientID:    r.ID,
		RecipientEmail: r.Email,
		RecipientName:  r.Name,
		SendAttempted:  true,
		CreatedAt:      s.now().UTC(),
	}
	id, err := s.repo.Insert(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("insert tracked message for recipient %d: %w", r.ID, err)
	}
	m.ID = id
	return m, nil
}

// MarkSent records provider confirmation for id.
func (s *Service) MarkSent(ctx context.Context, id int64) error {
	return s.repo.MarkSent(ctx, id)
}

// MarkOpened records the first open of the message carrying token and
// returns the stored open time. Malformed tokens are reported as
// ErrNotFound without touching storage.
func (s *Service) MarkOpened(ctx context.Context, token string, at time.Time) (time.Time, error) {
	if _, err := uuid.Parse(token); err != nil {
		return time.Time{}, ErrNotFound
	}
	if at.IsZero() {
		at = s.now()
	}
	return s.repo.MarkOpened(ctx, token, at.UTC())
}

// Get returns a single message by id.
func (s *Service) Get(ctx context.Context, id int64) (*domain.TrackedMessage, error) {
	return s.repo.Get(ctx, id)
}

// GetByToken returns the message carrying token.
func (s *Service) GetByToken(ctx context.Context, token string) (*domain.TrackedMessage, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, ErrNotFound
	}
	return s.repo.GetByToken(ctx, token)
}

// ListByIDs returns the existing messages among ids ordered by id. Duplicate
// ids are collapsed and missing ids are skipped.
func (s *Service) ListByIDs(ctx context.Context, ids []int64) ([]domain.TrackedMessage, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	return s.repo.ListByIDs(ctx, ids)
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
