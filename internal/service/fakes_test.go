package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/filevault/internal/domain/model"
	"github.com/bigkaa/filevault/internal/domain/query"
	"github.com/bigkaa/filevault/internal/events"
	"github.com/bigkaa/filevault/internal/objectstore"
	"github.com/bigkaa/filevault/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- In-memory metadata store ---

// memRepo — FileRepository в памяти, вычисляющий предикаты query.Set
// так же, как SQL-адаптер.
type memRepo struct {
	mu      sync.Mutex
	records []*model.FileRecord
	clock   time.Time

	createErr error
	updateErr error
	listErr   error
}

func newMemRepo() *memRepo {
	return &memRepo{clock: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (m *memRepo) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func cloneRecord(r *model.FileRecord) *model.FileRecord {
	cp := *r
	cp.SharedWith = slices.Clone(r.SharedWith)
	return &cp
}

// seed добавляет запись напрямую, минуя сервис.
func (m *memRepo) seed(r *model.FileRecord) *model.FileRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = m.tick()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	m.records = append(m.records, cloneRecord(r))
	return cloneRecord(r)
}

func (m *memRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *memRepo) Create(_ context.Context, f *model.FileRecord) (*model.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return nil, m.createErr
	}
	for _, r := range m.records {
		if r.ObjectKey == f.ObjectKey {
			return nil, repository.ErrConflict
		}
	}

	rec := cloneRecord(f)
	rec.ID = uuid.NewString()
	rec.CreatedAt = m.tick()
	rec.UpdatedAt = rec.CreatedAt
	m.records = append(m.records, rec)
	return cloneRecord(rec), nil
}

func (m *memRepo) Update(_ context.Context, set query.Set, patch repository.Patch) (*model.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return nil, m.updateErr
	}
	i, err := m.single(set)
	if err != nil {
		return nil, err
	}
	rec := m.records[i]
	if patch.Name != nil {
		rec.Name = *patch.Name
	}
	if patch.SharedWith != nil {
		rec.SharedWith = slices.Clone(*patch.SharedWith)
	}
	rec.UpdatedAt = m.tick()
	return cloneRecord(rec), nil
}

func (m *memRepo) Delete(_ context.Context, set query.Set) (*model.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, err := m.single(set)
	if err != nil {
		return nil, err
	}
	rec := m.records[i]
	m.records = slices.Delete(m.records, i, i+1)
	return rec, nil
}

func (m *memRepo) List(_ context.Context, set query.Set) ([]*model.FileRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listErr != nil {
		return nil, 0, m.listErr
	}

	var out []*model.FileRecord
	for _, r := range m.records {
		if matchAll(r, set.Where) {
			out = append(out, cloneRecord(r))
		}
	}
	if set.Order != nil {
		less, ok := orderFuncs[set.Order.Field]
		if !ok {
			return nil, 0, repository.ErrInvalidQuery
		}
		sort.SliceStable(out, func(i, j int) bool {
			if set.Order.Ascending {
				return less(out[i], out[j])
			}
			return less(out[j], out[i])
		})
	}

	total := len(out)
	if set.Limit > 0 && len(out) > set.Limit {
		out = out[:set.Limit]
	}
	return out, total, nil
}

func (m *memRepo) single(set query.Set) (int, error) {
	if len(set.Where) == 0 {
		return -1, repository.ErrInvalidQuery
	}
	for i, r := range m.records {
		if matchAll(r, set.Where) {
			return i, nil
		}
	}
	return -1, repository.ErrNotFound
}

var orderFuncs = map[string]func(a, b *model.FileRecord) bool{
	query.FieldCreatedAt: func(a, b *model.FileRecord) bool { return a.CreatedAt.Before(b.CreatedAt) },
	query.FieldUpdatedAt: func(a, b *model.FileRecord) bool { return a.UpdatedAt.Before(b.UpdatedAt) },
	query.FieldName:      func(a, b *model.FileRecord) bool { return a.Name < b.Name },
	query.FieldSize:      func(a, b *model.FileRecord) bool { return a.SizeBytes < b.SizeBytes },
}

func matchAll(r *model.FileRecord, preds []query.Predicate) bool {
	for _, p := range preds {
		if !match(r, p) {
			return false
		}
	}
	return true
}

func match(r *model.FileRecord, p query.Predicate) bool {
	switch p.Op {
	case query.OpEqual:
		return fieldValue(r, p.Field) == p.Value
	case query.OpContains:
		return strings.Contains(strings.ToLower(fieldValue(r, p.Field)), strings.ToLower(p.Value))
	case query.OpArrayContains:
		return slices.Contains(r.SharedWith, p.Value)
	case query.OpIn:
		return slices.Contains(p.Values, fieldValue(r, p.Field))
	case query.OpOr:
		for _, sub := range p.Any {
			if match(r, sub) {
				return true
			}
		}
	}
	return false
}

func fieldValue(r *model.FileRecord, field string) string {
	switch field {
	case query.FieldID:
		return r.ID
	case query.FieldName:
		return r.Name
	case query.FieldExtension:
		return r.Extension
	case query.FieldCategory:
		return string(r.Category)
	case query.FieldObjectKey:
		return r.ObjectKey
	case query.FieldOwnerID:
		return r.OwnerID
	}
	return ""
}

// --- In-memory object store ---

// memStore — objectstore.Store в памяти.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	putErr    error
	deleteErr error
	// truncate — сохранять не больше указанного числа байт (0 — без ограничения)
	truncate int
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (s *memStore) Put(_ context.Context, r io.Reader, _ int64, hint objectstore.PutHint) (objectstore.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.putErr != nil {
		return objectstore.ObjectInfo{}, s.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return objectstore.ObjectInfo{}, err
	}
	if s.truncate > 0 && len(data) > s.truncate {
		data = data[:s.truncate]
	}
	key := objectstore.NewObjectKey(hint.Filename)
	s.objects[key] = bytes.Clone(data)
	return objectstore.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.objects, key)
	return nil
}

func (s *memStore) Stat(_ context.Context, key string) (objectstore.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.objects[key]
	if !ok {
		return objectstore.ObjectInfo{}, objectstore.ErrNotFound
	}
	return objectstore.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (s *memStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// --- Notifier ---

// recordingNotifier запоминает отправленные события.
type recordingNotifier struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev events.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}

var errInjected = errors.New("injected failure")
