package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"loanbook/internal/core"
)

const (
	// LoansKey holds the JSON array of loans.
	LoansKey = "loans"
	// RemindersKey holds the reminder log as "<id>@<date>" entries.
	RemindersKey = "reminders"
)

const (
	lockRetry    = 10 * time.Millisecond
	lockTimeout  = 5 * time.Second
	staleLockAge = 30 * time.Second
)

// Store is a key/value blob store kept in memory and optionally mirrored to a
// JSON file. With a file, reads reload it and writes take "<path>.lock",
// reload, then replace only their own key, so several processes can share
// one file. Every write replaces the file through a temp file and rename.
type Store struct {
	mu    sync.Mutex
	path  string
	blobs map[string]json.RawMessage
}

func New() *Store {
	return &Store{blobs: map[string]json.RawMessage{}}
}

// NewFromFile loads path if it exists and persists every write to it.
// A missing file starts an empty store.
func NewFromFile(path string) (*Store, error) {
	s := New()
	s.path = path
	if err := s.refreshLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// refreshLocked replaces the in-memory blobs with the file contents. A
// missing or empty file keeps what is in memory.
func (s *Store) refreshLocked() error {
	if s.path == "" {
		return nil
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(b) == 0 {
		return nil
	}
	blobs := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &blobs); err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}
	if blobs == nil {
		blobs = map[string]json.RawMessage{}
	}
	s.blobs = blobs
	return nil
}

// lockFile takes the cross-process write lock. A lock older than
// staleLockAge is assumed abandoned by a crashed writer and removed.
func (s *Store) lockFile() (func(), error) {
	if s.path == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	name := s.path + ".lock"
	deadline := time.Now().Add(lockTimeout)
	for {
		f, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return func() { os.Remove(name) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if info, statErr := os.Stat(name); statErr == nil && time.Since(info.ModTime()) > staleLockAge {
			os.Remove(name)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock %s: timed out after %s", s.path, lockTimeout)
		}
		time.Sleep(lockRetry)
	}
}

// Get returns a copy of the blob stored under key.
func (s *Store) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refreshLocked(); err != nil {
		return nil, false, err
	}
	b, ok := s.blobs[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

// Put stores a JSON blob under key.
func (s *Store) Put(key string, blob []byte) error {
	if !json.Valid(blob) {
		return fmt.Errorf("blob for %q is not valid JSON", key)
	}
	blob = append([]byte(nil), blob...)
	return s.update(key, func(json.RawMessage, bool) (json.RawMessage, error) {
		return blob, nil
	})
}

// update runs a read-modify-write of one key under both locks. fn receives
// the current blob; a nil result leaves the store unchanged.
func (s *Store) update(key string, fn func(cur json.RawMessage, ok bool) (json.RawMessage, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockFile()
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.refreshLocked(); err != nil {
		return err
	}
	prev, had := s.blobs[key]
	next, err := fn(prev, had)
	if err != nil || next == nil {
		return err
	}
	s.blobs[key] = next
	if err := s.flushLocked(); err != nil {
		if had {
			s.blobs[key] = prev
		} else {
			delete(s.blobs, key)
		}
		return err
	}
	return nil
}

func (s *Store) flushLocked() error {
	if s.path == "" {
		return nil
	}
	b, err := json.MarshalIndent(s.blobs, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

// LoadLoans decodes the loans blob. A missing key is an empty collection.
func (s *Store) LoadLoans(_ context.Context) ([]core.Loan, error) {
	b, ok, err := s.Get(LoansKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []core.Loan{}, nil
	}
	var loans []core.Loan
	if err := json.Unmarshal(b, &loans); err != nil {
		return nil, fmt.Errorf("decode loans: %w", err)
	}
	if loans == nil {
		loans = []core.Loan{}
	}
	return loans, nil
}

// SaveLoans replaces the loans blob.
func (s *Store) SaveLoans(_ context.Context, loans []core.Loan) error {
	if loans == nil {
		loans = []core.Loan{}
	}
	b, err := json.Marshal(loans)
	if err != nil {
		return fmt.Errorf("encode loans: %w", err)
	}
	return s.update(LoansKey, func(json.RawMessage, bool) (json.RawMessage, error) {
		return b, nil
	})
}

func reminderEntry(loanID int64, day core.Date) string {
	return fmt.Sprintf("%d@%s", loanID, day)
}

func decodeReminders(b json.RawMessage, ok bool) ([]string, error) {
	if !ok {
		return nil, nil
	}
	var entries []string
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("decode reminders: %w", err)
	}
	return entries, nil
}

func (s *Store) WasReminded(_ context.Context, loanID int64, day core.Date) (bool, error) {
	b, ok, err := s.Get(RemindersKey)
	if err != nil {
		return false, err
	}
	entries, err := decodeReminders(b, ok)
	if err != nil {
		return false, err
	}
	entry := reminderEntry(loanID, day)
	for _, e := range entries {
		if e == entry {
			return true, nil
		}
	}
	return false, nil
}

// MarkReminded records the reminder. Entries for earlier days are dropped so
// the log only grows with the current day's reminders.
func (s *Store) MarkReminded(_ context.Context, loanID int64, day core.Date) error {
	return s.update(RemindersKey, func(cur json.RawMessage, ok bool) (json.RawMessage, error) {
		entries, err := decodeReminders(cur, ok)
		if err != nil {
			return nil, err
		}
		suffix := "@" + day.String()
		kept := make([]string, 0, len(entries)+1)
		for _, e := range entries {
			if len(e) > len(suffix) && e[len(e)-len(suffix):] == suffix {
				kept = append(kept, e)
			}
		}
		entry := reminderEntry(loanID, day)
		for _, e := range kept {
			if e == entry {
				return nil, nil
			}
		}
		return json.Marshal(append(kept, entry))
	})
}
