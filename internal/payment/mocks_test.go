package payment

import (
	"context"
	"sync"

	"github.com/fjod/go_cart/checkout-core/internal/audit"
)

type mockJournal struct {
	mu      sync.Mutex
	entries []audit.Entry
	err     error
}

func (m *mockJournal) Record(_ context.Context, entry audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockJournal) outcomes() []audit.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audit.Outcome, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Outcome
	}
	return out
}
