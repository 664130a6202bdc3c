package counters

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/bingo-sales/internal/events"
	"github.com/mmeshcher/bingo-sales/internal/model"
	"github.com/mmeshcher/bingo-sales/internal/repository"
)

func ptr(s string) *string { return &s }

func TestDeltas(t *testing.T) {
	tests := []struct {
		name   string
		change model.CardStateChange
		want   []Delta
	}{
		{
			name:   "assign unassigned card",
			change: model.CardStateChange{AssignedTo: ptr("L1")},
			want:   []Delta{{VendorID: "L1", Assigned: 1}},
		},
		{
			name:   "reassign from leader to seller",
			change: model.CardStateChange{PrevAssignedTo: ptr("L1"), AssignedTo: ptr("S1")},
			want:   []Delta{{VendorID: "S1", Assigned: 1}, {VendorID: "L1", Assigned: -1}},
		},
		{
			name:   "unassign",
			change: model.CardStateChange{PrevAssignedTo: ptr("S1")},
			want:   []Delta{{VendorID: "S1", Assigned: -1}},
		},
		{
			name:   "sold by assignee",
			change: model.CardStateChange{PrevAssignedTo: ptr("S1"), AssignedTo: ptr("S1"), Sold: true},
			want:   []Delta{{VendorID: "S1", Sold: 1}},
		},
		{
			name:   "sold while unassigned",
			change: model.CardStateChange{Sold: true},
			want:   nil,
		},
		{
			name:   "delete assigned unsold card",
			change: model.CardStateChange{PrevAssignedTo: ptr("S1"), Deleted: true},
			want:   []Delta{{VendorID: "S1", Assigned: -1}},
		},
		{
			name:   "delete assigned sold card",
			change: model.CardStateChange{PrevAssignedTo: ptr("S1"), PrevSold: true, Deleted: true},
			want:   []Delta{{VendorID: "S1", Assigned: -1, Sold: -1}},
		},
		{
			name:   "no change",
			change: model.CardStateChange{PrevAssignedTo: ptr("S1"), AssignedTo: ptr("S1")},
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Deltas(tt.change))
		})
	}
}

type stubStore struct {
	mu       sync.Mutex
	assigned map[string]int64
	sold     map[string]int64
	failures int
	err      error
}

func newStubStore() *stubStore {
	return &stubStore{assigned: map[string]int64{}, sold: map[string]int64{}}
}

func (s *stubStore) ApplyCounterDelta(_ context.Context, vendorID string, assigned, sold int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failures > 0 {
		s.failures--
		return fmt.Errorf("%w: connection reset", repository.ErrTransient)
	}
	if s.err != nil {
		return s.err
	}
	s.assigned[vendorID] += assigned
	s.sold[vendorID] += sold
	return nil
}

func (s *stubStore) get(vendorID string) (int64, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assigned[vendorID], s.sold[vendorID]
}

func TestApply_RetriesTransient(t *testing.T) {
	store := newStubStore()
	store.failures = 2
	c := NewConsumer(store, nil, 1, zap.NewNop(), nil)

	c.Apply(context.Background(), model.CardStateChange{AssignedTo: ptr("L1")})

	assigned, sold := store.get("L1")
	assert.Equal(t, int64(1), assigned)
	assert.Equal(t, int64(0), sold)
}

func TestApply_PermanentErrorSkipped(t *testing.T) {
	store := newStubStore()
	store.err = repository.ErrVendorNotFound
	c := NewConsumer(store, nil, 1, zap.NewNop(), nil)

	done := make(chan struct{})
	go func() {
		c.Apply(context.Background(), model.CardStateChange{AssignedTo: ptr("gone")})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("permanent error must not be retried")
	}
}

func TestConsumer_Run(t *testing.T) {
	store := newStubStore()
	bus := events.NewBus(16)
	c := NewConsumer(store, bus, 4, zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.NoError(t, bus.Publish(ctx, model.CardStateChange{CardID: "c1", AssignedTo: ptr("L1")}))
	require.NoError(t, bus.Publish(ctx, model.CardStateChange{CardID: "c2", AssignedTo: ptr("L1")}))
	require.NoError(t, bus.Publish(ctx, model.CardStateChange{CardID: "c1", PrevAssignedTo: ptr("L1"), AssignedTo: ptr("L1"), Sold: true}))

	require.Eventually(t, func() bool {
		assigned, sold := store.get("L1")
		return assigned == 2 && sold == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
