package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/htgen/internal/client/models"
	"github.com/dmitrijs2005/htgen/internal/client/repositories/kv"
	"github.com/dmitrijs2005/htgen/internal/common"
	"github.com/dmitrijs2005/htgen/internal/logging"
)

// MaxEvictionRetries bounds how many oldest entries are evicted, one per
// retry, when a history write exceeds the storage quota.
const MaxEvictionRetries = 3

type HistoryService interface {
	// Append stores entry with a fresh timestamp and returns the stored copy.
	// It returns (nil, nil) when the quota could not be satisfied.
	Append(ctx context.Context, entry models.HistoryEntry) (*models.HistoryEntry, error)
	// List returns entries newest first.
	List(ctx context.Context) ([]models.HistoryEntry, error)
	// Remove deletes the entry with timestamp ts and returns the remaining
	// entries newest first. Removing an absent entry is not an error.
	Remove(ctx context.Context, ts int64) ([]models.HistoryEntry, error)
	FindBySignature(ctx context.Context, sig models.Signature) (*models.HistoryEntry, error)
	// Restore re-adds a previously removed entry under a new timestamp.
	Restore(ctx context.Context, entry models.HistoryEntry) (*models.HistoryEntry, error)
}

type historyService struct {
	mu   sync.Mutex
	repo kv.Repository
	log  logging.Logger
	now  func() time.Time
	last int64
}

// NewHistoryService keeps the whole history in a single key of repo. Writes
// are serialized within the process only; two processes sharing one database
// race and the last writer wins.
func NewHistoryService(repo kv.Repository, log logging.Logger) HistoryService {
	return &historyService{repo: repo, log: log, now: time.Now}
}

func (s *historyService) load(ctx context.Context) ([]models.HistoryEntry, error) {
	data, err := s.repo.Get(ctx, common.HistoryKey)
	if err != nil {
		return nil, err
	}
	return models.DecodeHistory(data)
}

func (s *historyService) save(ctx context.Context, entries []models.HistoryEntry) error {
	data, err := models.EncodeHistory(entries)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return s.repo.Set(ctx, common.HistoryKey, data)
}

func newestFirst(entries []models.HistoryEntry) []models.HistoryEntry {
	out := slices.Clone(entries)
	slices.SortFunc(out, func(a, b models.HistoryEntry) int {
		return cmp.Compare(b.Timestamp, a.Timestamp)
	})
	return out
}

// nextTimestamp returns the clock in epoch ms, bumped past every timestamp
// already issued or stored.
func (s *historyService) nextTimestamp(entries []models.HistoryEntry) int64 {
	last := s.last
	for _, e := range entries {
		last = max(last, e.Timestamp)
	}
	ts := s.now().UnixMilli()
	if ts <= last {
		ts = last + 1
	}
	s.last = ts
	return ts
}

func (s *historyService) Append(ctx context.Context, entry models.HistoryEntry) (*models.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	entry.Timestamp = s.nextTimestamp(entries)
	entry.Topic = models.OptionalTopic(entry.TopicValue())
	if entry.Hashtags == nil {
		entry.Hashtags = []string{}
	}
	entries = append(entries, entry)

	// insertion order is oldest first, so eviction drops from the front
	slices.SortFunc(entries, func(a, b models.HistoryEntry) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})

	err = s.save(ctx, entries)
	for retry := 0; errors.Is(err, common.ErrQuotaExceeded) && retry < MaxEvictionRetries; retry++ {
		if len(entries) <= 1 {
			break
		}
		evicted := entries[0]
		entries = entries[1:]
		s.log.Debug(ctx, "history quota exceeded, evicting oldest",
			"evicted", evicted.Timestamp, "retry", retry+1)
		err = s.save(ctx, entries)
	}

	if errors.Is(err, common.ErrQuotaExceeded) {
		s.log.Warn(ctx, "history entry dropped, storage quota exhausted", "timestamp", entry.Timestamp)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("save history: %w", err)
	}

	stored := entry
	return &stored, nil
}

func (s *historyService) List(ctx context.Context) ([]models.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return newestFirst(entries), nil
}

func (s *historyService) Remove(ctx context.Context, ts int64) ([]models.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	kept := slices.DeleteFunc(slices.Clone(entries), func(e models.HistoryEntry) bool {
		return e.Timestamp == ts
	})
	if len(kept) == len(entries) {
		return newestFirst(entries), nil
	}

	if err := s.save(ctx, kept); err != nil {
		return nil, fmt.Errorf("save history: %w", err)
	}
	return newestFirst(kept), nil
}

func (s *historyService) FindBySignature(ctx context.Context, sig models.Signature) (*models.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range newestFirst(entries) {
		if sig.Matches(e) {
			found := e
			return &found, nil
		}
	}
	return nil, nil
}

func (s *historyService) Restore(ctx context.Context, entry models.HistoryEntry) (*models.HistoryEntry, error) {
	return s.Append(ctx, entry)
}
