package inbound

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type claimStatus string

const (
	claimStatusProcessing claimStatus = "processing"
	claimStatusRetryReady claimStatus = "retry_ready"
	claimStatusComplete   claimStatus = "complete"
)

type claimEntry struct {
	claimID   string
	status    claimStatus
	expiresAt time.Time
	retryAt   time.Time
	lastError string
}

// InMemoryClaimStore backs the dispatcher for single-process deployments and
// tests. A key stays claimed until Complete, Fail, or lease expiry; completed
// keys keep suppressing duplicates until their entry is evicted.
type InMemoryClaimStore struct {
	mu      sync.Mutex
	entries map[string]*claimEntry
	claims  map[string]string
	nextID  int

	// Now is injectable for tests.
	Now func() time.Time
}

func NewInMemoryClaimStore() *InMemoryClaimStore {
	return &InMemoryClaimStore{
		entries: map[string]*claimEntry{},
		claims:  map[string]string{},
		Now:     time.Now,
	}
}

func (s *InMemoryClaimStore) Claim(ctx context.Context, key string, lease time.Duration) (string, bool, error) {
	if s == nil {
		return "", false, inboundInternal("inbound: claim store is nil", nil)
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, inboundBadInput("inbound: claim key is required", nil)
	}
	if lease <= 0 {
		lease = 10 * time.Minute
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.evictExpiredLocked(now)

	if entry, exists := s.entries[key]; exists {
		switch entry.status {
		case claimStatusComplete:
			// KeyTTL doubles as the dedupe window for completed deliveries.
			if now.Before(entry.expiresAt) {
				return "", false, nil
			}
		case claimStatusProcessing:
			if now.Before(entry.expiresAt) {
				return "", false, nil
			}
		case claimStatusRetryReady:
			if now.Before(entry.retryAt) {
				return "", false, nil
			}
		}
		delete(s.claims, entry.claimID)
	}

	s.nextID++
	claimID := fmt.Sprintf("claim_%d", s.nextID)
	s.entries[key] = &claimEntry{
		claimID:   claimID,
		status:    claimStatusProcessing,
		expiresAt: now.Add(lease),
	}
	s.claims[claimID] = key
	return claimID, true, nil
}

func (s *InMemoryClaimStore) Complete(ctx context.Context, claimID string) error {
	if s == nil {
		return inboundInternal("inbound: claim store is nil", nil)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.entryForClaimLocked(claimID)
	if err != nil {
		return err
	}
	entry.status = claimStatusComplete
	entry.lastError = ""
	return nil
}

func (s *InMemoryClaimStore) Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error {
	if s == nil {
		return inboundInternal("inbound: claim store is nil", nil)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.entryForClaimLocked(claimID)
	if err != nil {
		return err
	}
	entry.status = claimStatusRetryReady
	entry.retryAt = retryAt
	if cause != nil {
		entry.lastError = cause.Error()
	}
	return nil
}

func (s *InMemoryClaimStore) entryForClaimLocked(claimID string) (*claimEntry, error) {
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return nil, inboundBadInput("inbound: claim id is required", nil)
	}
	key, exists := s.claims[claimID]
	if !exists {
		return nil, inboundBadInput(
			fmt.Sprintf("inbound: unknown claim id %q", claimID),
			map[string]any{"claim_id": claimID},
		)
	}
	entry, exists := s.entries[key]
	if !exists || entry.claimID != claimID {
		return nil, inboundBadInput(
			fmt.Sprintf("inbound: claim %q was superseded", claimID),
			map[string]any{"claim_id": claimID},
		)
	}
	return entry, nil
}

// evictExpiredLocked drops entries well past their window so the maps stay
// bounded under long-running processes.
func (s *InMemoryClaimStore) evictExpiredLocked(now time.Time) {
	for key, entry := range s.entries {
		if now.Before(entry.expiresAt.Add(time.Hour)) {
			continue
		}
		delete(s.claims, entry.claimID)
		delete(s.entries, key)
	}
}

func (s *InMemoryClaimStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

var _ ClaimStore = (*InMemoryClaimStore)(nil)
