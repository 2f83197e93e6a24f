// Package history keeps an append-only journal of committed config changes.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/log"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	commitPrefix = "commit/"
	sequenceKey  = "seq/commit"
)

// Commit is one journal entry.
type Commit struct {
	Hash          string    `json:"hash"`
	Author        string    `json:"author"`
	Timestamp     time.Time `json:"timestamp"`
	Message       string    `json:"message"`
	Key           string    `json:"key"`
	Value         string    `json:"value"`
	PreviousValue string    `json:"previous_value,omitempty"`
	Version       int       `json:"version"`
	Deleted       bool      `json:"deleted,omitempty"`
}

// ShortHash returns the first seven characters of the hash.
func (c Commit) ShortHash() string {
	if len(c.Hash) <= 7 {
		return c.Hash
	}
	return c.Hash[:7]
}

// Journal stores commits in BadgerDB ordered by time.
type Journal struct {
	db     *badger.DB
	seq    *badger.Sequence
	path   string
	logger log.Logger
	now    func() time.Time
}

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(j *Journal) { j.logger = logger }
}

// WithClock overrides the time source used for commit timestamps.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// Open opens or creates a journal at path. An empty path keeps the journal in
// memory.
func Open(path string, opts ...Option) (*Journal, error) {
	j := &Journal{
		path:   path,
		logger: log.GetDefaultLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	j.logger = j.logger.WithComponent("history")

	bopts := badger.DefaultOptions(path)
	if path == "" {
		bopts = bopts.WithInMemory(true)
	}
	bopts.Logger = &badgerLogAdapter{logger: j.logger}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open history journal: %w", err)
	}
	seq, err := db.GetSequence([]byte(sequenceKey), 100)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open commit sequence: %w", err)
	}
	j.db = db
	j.seq = seq
	j.logger.Info("History journal opened", log.Str("path", path))
	return j, nil
}

// Close closes the journal.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	j.logger.Info("Closing history journal", log.Str("path", j.path))
	if err := j.seq.Release(); err != nil {
		j.logger.Warn("Failed to release commit sequence", log.Err(err))
	}
	err := j.db.Close()
	j.db = nil
	return err
}

// commitKey sorts lexically by time, ties broken by append order.
func commitKey(ts time.Time, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d/%020d", commitPrefix, ts.UnixNano(), seq))
}

// Append stores a commit, filling in hash and timestamp when unset.
func (j *Journal) Append(ctx context.Context, c Commit) (Commit, error) {
	if err := ctx.Err(); err != nil {
		return Commit{}, err
	}
	if c.Hash == "" {
		c.Hash = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = j.now()
	}
	c.Timestamp = c.Timestamp.UTC()

	data, err := json.Marshal(c)
	if err != nil {
		return Commit{}, fmt.Errorf("failed to serialize commit: %w", err)
	}
	n, err := j.seq.Next()
	if err != nil {
		return Commit{}, fmt.Errorf("failed to allocate commit sequence: %w", err)
	}
	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(commitKey(c.Timestamp, n), data)
	})
	if err != nil {
		return Commit{}, fmt.Errorf("failed to append commit: %w", err)
	}
	j.logger.Debug("Commit recorded", log.Str("hash", c.ShortHash()), log.Str("key", c.Key))
	return c, nil
}

// RecordChange journals an update. previous is nil when the key was created.
func (j *Journal) RecordChange(ctx context.Context, previous *types.ConfigRecord, current types.ConfigRecord) error {
	c := Commit{
		Author:    current.UpdatedBy,
		Timestamp: current.UpdatedAt,
		Key:       current.Key,
		Value:     current.Value,
		Version:   current.Version,
	}
	switch {
	case previous == nil:
		c.Message = fmt.Sprintf("config: create %s", current.Key)
	case current.Version == 0:
		c.Deleted = true
		c.PreviousValue = previous.Value
		c.Message = fmt.Sprintf("config: delete %s", current.Key)
	default:
		c.PreviousValue = previous.Value
		c.Message = fmt.Sprintf("config: update %s (v%d -> v%d)", current.Key, previous.Version, current.Version)
	}
	_, err := j.Append(ctx, c)
	return err
}

// Commits returns commits at or after since, oldest first.
func (j *Journal) Commits(ctx context.Context, since time.Time) ([]Commit, error) {
	var commits []Commit
	prefix := []byte(commitPrefix)
	start := []byte(commitPrefix)
	if !since.IsZero() {
		start = commitKey(since.UTC(), 0)
	}

	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				var c Commit
				if err := json.Unmarshal(val, &c); err != nil {
					return fmt.Errorf("failed to deserialize commit: %w", err)
				}
				commits = append(commits, c)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return commits, nil
}

// KeyHistory returns the commits for key, newest first, keeping only entries
// whose value differs from the next older one.
func (j *Journal) KeyHistory(ctx context.Context, key string) ([]Commit, error) {
	all, err := j.Commits(ctx, time.Time{})
	if err != nil {
		return nil, err
	}
	var out []Commit
	lastValue := ""
	first := true
	for _, c := range all {
		if c.Key != key {
			continue
		}
		if !first && c.Value == lastValue && !c.Deleted {
			continue
		}
		out = append(out, c)
		lastValue = c.Value
		first = false
	}
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}

// badgerLogAdapter routes BadgerDB logs through our logger.
type badgerLogAdapter struct {
	logger log.Logger
}

func (l *badgerLogAdapter) Errorf(format string, args ...interface{}) {
	l.logger.Error("BadgerDB: " + strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogAdapter) Warningf(format string, args ...interface{}) {
	l.logger.Warn("BadgerDB: " + strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogAdapter) Infof(format string, args ...interface{}) {
	l.logger.Debug("BadgerDB: " + strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogAdapter) Debugf(format string, args ...interface{}) {
	l.logger.Debug("BadgerDB: " + strings.TrimSpace(fmt.Sprintf(format, args...)))
}
