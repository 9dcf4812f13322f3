package testutil

import (
	"context"
	"sync"

	"ncfpos/internal/core/apperror"
	"ncfpos/internal/infrastructure/storage/postgres"
)

type idemRecord struct {
	req    postgres.IdempotencyRequest
	replay *postgres.IdempotencyReplay
}

// IdempotencyStore keeps idempotency keys in memory with the same outcomes
// as the sys_idempotency implementation, without expiry.
type IdempotencyStore struct {
	mu           sync.Mutex
	records      map[string]*idemRecord
	completeErrs []error

	// Released counts ReleaseKey calls.
	Released int

	// ReclaimPending hands pending keys to the next caller, as happens once a
	// key has stayed pending past the stale window.
	ReclaimPending bool
}

// NewIdempotencyStore creates an empty store.
func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{records: make(map[string]*idemRecord)}
}

func (s *IdempotencyStore) AcquireKey(_ context.Context, req postgres.IdempotencyRequest) (*postgres.IdempotencyReplay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[req.Key]
	if !ok {
		s.records[req.Key] = &idemRecord{req: req}
		return nil, nil
	}
	if rec.req.RequestHash != req.RequestHash || rec.req.Operation != req.Operation || rec.req.StoreID != req.StoreID {
		return nil, apperror.NewIdempotencyMismatch(req.Key)
	}
	if rec.replay == nil {
		if s.ReclaimPending {
			return nil, nil
		}
		return nil, apperror.NewIdempotencyConflict(req.Key)
	}
	out := *rec.replay
	return &out, nil
}

func (s *IdempotencyStore) CompleteKey(_ context.Context, key string, statusCode int, contentType string, body []byte) error {
	s.mu.Lock()
	if len(s.completeErrs) > 0 {
		err := s.completeErrs[0]
		s.completeErrs = s.completeErrs[1:]
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	return s.finish(key, statusCode, contentType, body)
}

// FailNextComplete makes the next CompleteKey return err and leave the key pending.
func (s *IdempotencyStore) FailNextComplete(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completeErrs = append(s.completeErrs, err)
}

func (s *IdempotencyStore) FailKey(_ context.Context, key string, statusCode int, contentType string, body []byte) error {
	return s.finish(key, statusCode, contentType, body)
}

func (s *IdempotencyStore) ReleaseKey(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	s.Released++
	return nil
}

// Stored reports whether a final response is recorded for key.
func (s *IdempotencyStore) Stored(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	return ok && rec.replay != nil
}

func (s *IdempotencyStore) finish(key string, statusCode int, contentType string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return apperror.NewNotFound("idempotency key", key)
	}
	rec.replay = &postgres.IdempotencyReplay{
		StatusCode:  statusCode,
		ContentType: contentType,
		Body:        append([]byte(nil), body...),
	}
	return nil
}
