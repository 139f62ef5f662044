package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sarafnet/hawala-service/internal/domain"
	"github.com/sarafnet/hawala-service/internal/ratecache"
	"github.com/sarafnet/hawala-service/internal/store"
)

// casRepoStub is an in-memory ledger with a real compare-and-swap transition,
// the in-process equivalent of the conditional UPDATE the Postgres repository
// issues. Concurrent transitions race on the mutex and exactly one observes
// the expected status.
type casRepoStub struct {
	store.Repository

	mu       sync.Mutex
	transfer *domain.Transfer

	counterCalls int
	auditCalls   int
}

func (s *casRepoStub) FindTransferByID(ctx context.Context, transferID uuid.UUID) (*domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transfer == nil || s.transfer.ID != transferID {
		return nil, store.ErrTransferNotFound
	}
	copied := *s.transfer
	return &copied, nil
}

func (s *casRepoStub) TransitionTransfer(ctx context.Context, transferID uuid.UUID, expectedStatus, newStatus string, mutation store.TransferMutation) (*domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transfer == nil || s.transfer.ID != transferID {
		return nil, store.ErrTransferNotFound
	}
	if s.transfer.Status != expectedStatus {
		return nil, store.ErrTransferStateConflict
	}
	s.transfer.Status = newStatus
	s.transfer.CompletedAt = mutation.CompletedAt
	s.transfer.HandlerID = mutation.HandlerID
	copied := *s.transfer
	return &copied, nil
}

func (s *casRepoStub) IncrementSarafTransactions(ctx context.Context, sarafID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counterCalls++
	return nil
}

func (s *casRepoStub) AppendAuditEntry(ctx context.Context, entry store.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditCalls++
	return nil
}

func (s *casRepoStub) CreateInAppNotification(ctx context.Context, item domain.InAppNotification) error {
	return nil
}

func TestCompleteTransfer_ConcurrentCallsExactlyOneWins(t *testing.T) {
	sarafID := uuid.New()
	repo := &casRepoStub{transfer: pendingTransfer(sarafID, nil)}
	service := NewService(repo, &resolverStub{}, &publisherStub{}, ratecache.New())
	handler := domain.Actor{ID: uuid.New(), Role: domain.RoleSaraf, OwnedSarafID: &sarafID}
	transferID := repo.transfer.ID

	const callers = 8
	errs := make(chan error, callers)
	var start sync.WaitGroup
	start.Add(1)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start.Wait()
			_, err := service.CompleteTransfer(context.Background(), handler, transferID, "")
			errs <- err
		}()
	}
	start.Done()
	wg.Wait()
	close(errs)

	var wins, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, store.ErrTransferStateConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error from concurrent completion: %v", err)
		}
	}

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if conflicts != callers-1 {
		t.Fatalf("expected %d state conflicts, got %d", callers-1, conflicts)
	}
	if repo.counterCalls != 1 {
		t.Fatalf("expected the settlement counter incremented once, got %d", repo.counterCalls)
	}
	if repo.transfer.Status != domain.TransferStatusCompleted {
		t.Fatalf("expected the transfer to end completed, got %q", repo.transfer.Status)
	}
}

func TestCompleteAndCancel_ConcurrentRaceSettlesOnce(t *testing.T) {
	sarafID := uuid.New()
	repo := &casRepoStub{transfer: pendingTransfer(sarafID, nil)}
	service := NewService(repo, &resolverStub{}, &publisherStub{}, ratecache.New())
	handler := domain.Actor{ID: uuid.New(), Role: domain.RoleSaraf, OwnedSarafID: &sarafID}
	transferID := repo.transfer.ID

	var wg sync.WaitGroup
	results := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := service.CompleteTransfer(context.Background(), handler, transferID, "")
		results <- err
	}()
	go func() {
		defer wg.Done()
		_, err := service.CancelTransfer(context.Background(), handler, transferID, "customer withdrew")
		results <- err
	}()
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, store.ErrTransferStateConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error from racing transitions: %v", err)
		}
	}

	if wins != 1 || conflicts != 1 {
		t.Fatalf("expected one winner and one conflict, got wins=%d conflicts=%d", wins, conflicts)
	}
	if repo.transfer.Status == domain.TransferStatusPending {
		t.Fatal("expected the transfer to have left pending")
	}
}
