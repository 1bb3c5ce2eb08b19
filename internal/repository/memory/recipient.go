package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ignite/mailtrack/internal/domain"
)

// RecipientRepo implements ledger.RecipientSource in memory.
type RecipientRepo struct {
	mu         sync.RWMutex
	recipients map[int64]domain.Recipient
}

// NewRecipientRepo creates a repository seeded with rs.
func NewRecipientRepo(rs ...domain.Recipient) *RecipientRepo {
	r := &RecipientRepo{recipients: make(map[int64]domain.Recipient)}
	for _, rec := range rs {
		r.recipients[rec.ID] = rec
	}
	return r
}

// Put adds or replaces a recipient.
func (r *RecipientRepo) Put(rec domain.Recipient) {
	r.mu.Lock()
	r.recipients[rec.ID] = rec
	r.mu.Unlock()
}

func (r *RecipientRepo) ListRecipients(_ context.Context, ids []int64) ([]domain.Recipient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[int64]bool, len(ids))
	var out []domain.Recipient
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if rec, ok := r.recipients[id]; ok {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *RecipientRepo) get(id int64) (domain.Recipient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.recipients[id]
	return rec, ok
}
