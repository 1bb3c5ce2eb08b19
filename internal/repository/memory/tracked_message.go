package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/service/ledger"
)

// TrackedMessageRepo implements ledger.Repository in memory.
type TrackedMessageRepo struct {
	mu         sync.Mutex
	nextID     int64
	messages   map[int64]*domain.TrackedMessage
	byToken    map[string]int64
	recipients *RecipientRepo
}

// NewTrackedMessageRepo creates an empty repository. When recipients is
// non-nil, ListByIDs fills recipient email and name from it.
func NewTrackedMessageRepo(recipients *RecipientRepo) *TrackedMessageRepo {
	return &TrackedMessageRepo{
		messages:   make(map[int64]*domain.TrackedMessage),
		byToken:    make(map[string]int64),
		recipients: recipients,
	}
}

func (r *TrackedMessageRepo) Insert(_ context.Context, m *domain.TrackedMessage) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	cp := *m
	cp.ID = r.nextID
	cp.Sent = false
	cp.Opened = false
	cp.OpenedAt = nil
	r.messages[cp.ID] = &cp
	r.byToken[cp.Token] = cp.ID
	return cp.ID, nil
}

func (r *TrackedMessageRepo) MarkSent(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return ledger.ErrNotFound
	}
	m.Sent = true
	return nil
}

func (r *TrackedMessageRepo) MarkOpened(_ context.Context, token string, at time.Time) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byToken[token]
	if !ok {
		return time.Time{}, ledger.ErrNotFound
	}
	m := r.messages[id]
	if !m.Opened {
		m.Opened = true
		t := at
		m.OpenedAt = &t
	}
	return *m.OpenedAt, nil
}

func (r *TrackedMessageRepo) Get(_ context.Context, id int64) (*domain.TrackedMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return copyMessage(m), nil
}

func (r *TrackedMessageRepo) GetByToken(_ context.Context, token string) (*domain.TrackedMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byToken[token]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return copyMessage(r.messages[id]), nil
}

func (r *TrackedMessageRepo) ListByIDs(ctx context.Context, ids []int64) ([]domain.TrackedMessage, error) {
	r.mu.Lock()
	var out []domain.TrackedMessage
	for _, id := range ids {
		if m, ok := r.messages[id]; ok {
			out = append(out, *copyMessage(m))
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if r.recipients != nil {
		for i := range out {
			if rec, ok := r.recipients.get(out[i].RecipientID); ok {
				out[i].RecipientEmail = rec.Email
				out[i].RecipientName = rec.Name
			}
		}
	}
	return out, nil
}

func copyMessage(m *domain.TrackedMessage) *domain.TrackedMessage {
	cp := *m
	if m.OpenedAt != nil {
		t := *m.OpenedAt
		cp.OpenedAt = &t
	}
	return &cp
}
