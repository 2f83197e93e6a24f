// Package configstore provides the typed, versioned view over the persisted
// configuration table and the only sanctioned write path into it.
package configstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/log"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/store"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
)

// DefaultActor is recorded when an update does not name who made it.
const DefaultActor = "system"

// Recorder observes committed changes. previous is nil on create; current has
// Version 0 on delete. Failures are logged and never undo the change.
type Recorder interface {
	RecordChange(ctx context.Context, previous *types.ConfigRecord, current types.ConfigRecord) error
}

// snapshot is an immutable view published to readers.
type snapshot struct {
	records []types.ConfigRecord
	index   map[string]int
}

func newSnapshot(records []types.ConfigRecord) *snapshot {
	s := &snapshot{records: records, index: make(map[string]int, len(records))}
	for i, r := range records {
		s.index[r.Key] = i
	}
	return s
}

func (s *snapshot) get(key string) (types.ConfigRecord, bool) {
	i, ok := s.index[key]
	if !ok {
		return types.ConfigRecord{}, false
	}
	return s.records[i], true
}

// Store is the configuration store. Reads are lock-free against the last
// published snapshot; writes are serialised by a store-wide mutex.
type Store struct {
	mu       sync.Mutex
	current  atomic.Pointer[snapshot]
	loadErr  error
	storage  store.Storage
	schema   *Schema
	limits   store.Limits
	recorder Recorder
	logger   log.Logger
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithSchema replaces the default schema.
func WithSchema(schema *Schema) Option {
	return func(s *Store) { s.schema = schema }
}

// WithLimits sets key and value size limits.
func WithLimits(limits store.Limits) Option {
	return func(s *Store) { s.limits = limits }
}

// WithRecorder registers a change observer.
func WithRecorder(r Recorder) Option {
	return func(s *Store) { s.recorder = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a store over storage and loads it. A missing table is treated
// as empty. Any other load failure is logged: getters then return their
// defaults and updates are refused until Reload succeeds.
func New(ctx context.Context, storage store.Storage, opts ...Option) (*Store, error) {
	if storage == nil {
		return nil, types.NewError(types.KindConfigurationMissing, "open", "no storage configured")
	}
	s := &Store{
		storage: storage,
		limits:  store.DefaultLimits(),
		logger:  log.GetDefaultLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.schema == nil {
		s.schema = NewSchema(nil, nil)
	}
	s.logger = s.logger.WithComponent("configstore")
	s.current.Store(newSnapshot(nil))

	if err := s.Reload(ctx); err != nil {
		s.logger.Warn("Config store unavailable, serving defaults",
			log.Str("location", storage.Location()), log.Err(err))
	}
	return s, nil
}

// Schema returns the schema used for validation.
func (s *Store) Schema() *Schema {
	return s.schema
}

// Location returns the storage location.
func (s *Store) Location() string {
	return s.storage.Location()
}

// Reload re-reads the table from storage and publishes it.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadLocked(ctx)
}

func (s *Store) reloadLocked(ctx context.Context) error {
	records, err := s.readLocked(ctx)
	if err != nil {
		s.loadErr = err
		return err
	}
	s.loadErr = nil
	s.current.Store(newSnapshot(records))
	return nil
}

func (s *Store) readLocked(ctx context.Context) ([]types.ConfigRecord, error) {
	data, err := s.storage.Read(ctx)
	if errors.Is(err, types.ErrNotFound) {
		return []types.ConfigRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	records, err := store.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config table: %w", err)
	}
	return records, nil
}

// Exclusive runs fn while holding the write lock and republishes the table
// afterwards. Callers that replace the storage content directly use it so no
// update interleaves with the replacement.
func (s *Store) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fnErr := fn(ctx)
	if err := s.reloadLocked(ctx); err != nil {
		s.logger.Error("Failed to reload config store", log.Err(err))
		if fnErr == nil {
			return fmt.Errorf("failed to reload config store: %w", err)
		}
	}
	return fnErr
}

// Get returns the raw value for key.
func (s *Store) Get(key string) (string, bool) {
	r, ok := s.current.Load().get(key)
	if !ok {
		return "", false
	}
	return r.Value, true
}

// Record returns the full record for key.
func (s *Store) Record(key string) (types.ConfigRecord, bool) {
	return s.current.Load().get(key)
}

// GetString returns the value for key or def.
func (s *Store) GetString(key, def string) string {
	if v, ok := s.Get(key); ok {
		return v
	}
	return def
}

// GetNumber returns the value for key parsed as a float, or def.
func (s *Store) GetNumber(key string, def float64) float64 {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return n
}

// GetInt returns the value for key parsed as an integer, or def.
func (s *Store) GetInt(key string, def int) int {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// GetBool accepts true/1 and false/0 (case-insensitive); anything else yields def.
func (s *Store) GetBool(key string, def bool) bool {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1":
		return true
	case "false", "0":
		return false
	}
	return def
}

// GetURL returns the value for key parsed as an absolute URL, or def.
func (s *Store) GetURL(key string, def *url.URL) *url.URL {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	u, err := url.Parse(strings.TrimSpace(v))
	if err != nil || u.Scheme == "" {
		return def
	}
	return u
}

// All returns a copy of every record in table order.
func (s *Store) All() []types.ConfigRecord {
	snap := s.current.Load()
	out := make([]types.ConfigRecord, len(snap.records))
	copy(out, snap.records)
	return out
}

// ByPrefix returns records whose key starts with prefix.
func (s *Store) ByPrefix(prefix string) []types.ConfigRecord {
	var out []types.ConfigRecord
	for _, r := range s.current.Load().records {
		if strings.HasPrefix(r.Key, prefix) {
			out = append(out, r)
		}
	}
	return out
}

// Search returns records whose key matches pattern, case-insensitively.
func (s *Store) Search(pattern string) ([]types.ConfigRecord, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, types.WrapError(types.KindValidationFailed, "search", err, "invalid pattern %q", pattern)
	}
	var out []types.ConfigRecord
	for _, r := range s.current.Load().records {
		if re.MatchString(r.Key) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Latest returns the most recently updated record.
func (s *Store) Latest() (types.ConfigRecord, bool) {
	records := s.All()
	if len(records) == 0 {
		return types.ConfigRecord{}, false
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	return records[0], true
}

// Update validates and applies a single change. Validation and permission
// failures are returned both as a result with Success=false and as an error.
func (s *Store) Update(ctx context.Context, key, value, actor string) (*types.UpdateResult, error) {
	if actor == "" {
		actor = DefaultActor
	}
	if err := s.check(key, value); err != nil {
		return failedUpdate(err), err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loadErr != nil {
		err := types.WrapError(types.KindNotFound, "update", s.loadErr, "config store unavailable")
		return failedUpdate(err), err
	}

	base := s.current.Load()
	records := make([]types.ConfigRecord, len(base.records))
	copy(records, base.records)

	var previous *types.ConfigRecord
	next := types.ConfigRecord{
		Key:       key,
		Value:     value,
		Version:   1,
		UpdatedBy: actor,
		UpdatedAt: s.now().UTC(),
	}
	if i, ok := base.index[key]; ok {
		prev := records[i]
		previous = &prev
		next.Version = prev.Version + 1
		records[i] = next
	} else {
		records = append(records, next)
	}

	if err := s.persistLocked(ctx, records); err != nil {
		return failedUpdate(err), err
	}

	s.logger.Info("Config updated",
		log.Str("key", key), log.Int("version", next.Version), log.Actor(actor))
	s.record(ctx, previous, next)

	result := &types.UpdateResult{Success: true, Record: next}
	if previous != nil {
		result.PreviousVersion = previous.Version
	}
	return result, nil
}

// BatchUpdate validates every entry before applying any and persists once.
// A failure rejects the whole batch.
func (s *Store) BatchUpdate(ctx context.Context, updates []types.KeyValue, actor string) (*types.BatchResult, error) {
	if actor == "" {
		actor = DefaultActor
	}
	if len(updates) == 0 {
		err := types.NewValidationError("No updates provided")
		return &types.BatchResult{Error: err.Detail()}, err
	}
	for _, u := range updates {
		if err := s.check(u.Key, u.Value); err != nil {
			var te *types.Error
			if errors.As(err, &te) {
				te.Message = fmt.Sprintf("%s: %s", u.Key, te.Message)
				te.Op = "batch_update"
			}
			return &types.BatchResult{Error: errorDetail(err)}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loadErr != nil {
		err := types.WrapError(types.KindNotFound, "batch_update", s.loadErr, "config store unavailable")
		return &types.BatchResult{Error: err.Detail()}, err
	}

	base := s.current.Load()
	records := make([]types.ConfigRecord, len(base.records))
	copy(records, base.records)
	index := make(map[string]int, len(base.index))
	for k, v := range base.index {
		index[k] = v
	}

	now := s.now().UTC()
	type change struct {
		previous *types.ConfigRecord
		current  types.ConfigRecord
	}
	changes := make([]change, 0, len(updates))
	for _, u := range updates {
		next := types.ConfigRecord{Key: u.Key, Value: u.Value, Version: 1, UpdatedBy: actor, UpdatedAt: now}
		var previous *types.ConfigRecord
		if i, ok := index[u.Key]; ok {
			prev := records[i]
			previous = &prev
			next.Version = prev.Version + 1
			records[i] = next
		} else {
			index[u.Key] = len(records)
			records = append(records, next)
		}
		changes = append(changes, change{previous: previous, current: next})
	}

	if err := s.persistLocked(ctx, records); err != nil {
		return &types.BatchResult{Error: errorDetail(err)}, err
	}

	s.logger.Info("Config batch applied", log.Int("count", len(changes)), log.Actor(actor))
	result := &types.BatchResult{Success: true, Count: len(changes)}
	for _, c := range changes {
		s.record(ctx, c.previous, c.current)
		result.Records = append(result.Records, c.current)
	}
	return result, nil
}

// Delete removes key. Protected keys cannot be deleted.
func (s *Store) Delete(ctx context.Context, key, actor string) error {
	if s.schema.IsProtected(key) {
		return types.NewError(types.KindPermissionDenied, "delete", "Cannot modify protected key: "+key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loadErr != nil {
		return types.WrapError(types.KindNotFound, "delete", s.loadErr, "config store unavailable")
	}
	base := s.current.Load()
	i, ok := base.index[key]
	if !ok {
		return types.NewError(types.KindNotFound, "delete", "Key not found: "+key)
	}
	prev := base.records[i]
	records := make([]types.ConfigRecord, 0, len(base.records)-1)
	records = append(records, base.records[:i]...)
	records = append(records, base.records[i+1:]...)

	if err := s.persistLocked(ctx, records); err != nil {
		return err
	}
	if actor == "" {
		actor = DefaultActor
	}
	s.logger.Info("Config key deleted", log.Str("key", key), log.Actor(actor))
	s.record(ctx, &prev, types.ConfigRecord{Key: key, UpdatedBy: actor, UpdatedAt: s.now().UTC()})
	return nil
}

func (s *Store) check(key, value string) error {
	if err := s.schema.Check(key, value); err != nil {
		return err
	}
	if s.limits.MaxKeyNameLength > 0 && len(key) > s.limits.MaxKeyNameLength {
		return types.NewValidationError(fmt.Sprintf("Key exceeds %d characters", s.limits.MaxKeyNameLength))
	}
	if s.limits.MaxValueBytes > 0 && len(value) > s.limits.MaxValueBytes {
		return types.NewValidationError(fmt.Sprintf("Value exceeds %d bytes", s.limits.MaxValueBytes))
	}
	return nil
}

// persistLocked writes records atomically and only then publishes them.
func (s *Store) persistLocked(ctx context.Context, records []types.ConfigRecord) error {
	data, err := store.Encode(records)
	if err != nil {
		return types.WrapError(types.KindTransferFailed, "update", err, "failed to encode config table")
	}
	if err := s.storage.AtomicReplace(ctx, data); err != nil {
		s.logger.Error("Failed to persist config table", log.Err(err))
		return types.WrapError(types.KindTransferFailed, "update", err, "failed to persist config table")
	}
	s.current.Store(newSnapshot(records))
	return nil
}

func (s *Store) record(ctx context.Context, previous *types.ConfigRecord, current types.ConfigRecord) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordChange(ctx, previous, current); err != nil {
		s.logger.Warn("Failed to record config change", log.Str("key", current.Key), log.Err(err))
	}
}

func failedUpdate(err error) *types.UpdateResult {
	return &types.UpdateResult{Success: false, Error: errorDetail(err)}
}

func errorDetail(err error) string {
	var te *types.Error
	if errors.As(err, &te) {
		return te.Detail()
	}
	return err.Error()
}
