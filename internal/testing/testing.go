// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/harmonia-sync/harmonia/internal/models"
	"github.com/harmonia-sync/harmonia/internal/shared"
)

// FakePlatform is a scriptable in-memory test double for
// [services.Platform]. Entities live in a map keyed by native id;
// Calls records every method invocation in order. Safe for concurrent
// use.
type FakePlatform struct {
	mu sync.Mutex

	Platform models.Platform
	Entities map[string]*models.Entity
	Catalog  []models.Track // tracks findable via search

	FetchErr  error
	MutateErr error // returned by all write operations
	Calls     []string
	nextID    int
}

// NewFakePlatform creates an empty fake for p.
func NewFakePlatform(p models.Platform) *FakePlatform {
	return &FakePlatform{
		Platform: p,
		Entities: make(map[string]*models.Entity),
	}
}

// Seed stores a copy of entity under its native id on this platform,
// assigning one when missing.
func (f *FakePlatform) Seed(entity models.Entity) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := entity.PlatformID(f.Platform)
	if id == "" {
		f.nextID++
		id = fmt.Sprintf("%s-%d", f.Platform, f.nextID)
		entity.SetPlatformID(f.Platform, id)
	}
	f.Entities[id] = &entity
	return id
}

// AddToCatalog makes tracks findable by ISRC and metadata search,
// stamping each with a native id when missing.
func (f *FakePlatform) AddToCatalog(tracks ...models.Track) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tracks {
		if t.PlatformID(f.Platform) == "" {
			f.nextID++
			t = t.WithPlatformID(f.Platform, fmt.Sprintf("%s-t%d", f.Platform, f.nextID))
		}
		f.Catalog = append(f.Catalog, t)
	}
}

func (f *FakePlatform) record(call string) {
	f.Calls = append(f.Calls, call)
}

// CallsTo returns the recorded calls whose name matches method.
func (f *FakePlatform) CallsTo(method string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.Calls {
		if strings.HasPrefix(c, method) {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakePlatform) Kind() models.Platform { return f.Platform }
func (f *FakePlatform) Name() string          { return string(f.Platform) }

func (f *FakePlatform) FetchSnapshot(ctx context.Context) (*models.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("FetchSnapshot")
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	snapshot := &models.Snapshot{Platform: f.Platform}
	for _, e := range f.Entities {
		clone := *e
		clone.Members = append([]models.Track(nil), e.Members...)
		snapshot.Entities = append(snapshot.Entities, &clone)
	}
	return snapshot, nil
}

func (f *FakePlatform) SearchByISRC(ctx context.Context, isrc string) (*models.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SearchByISRC " + isrc)
	for _, t := range f.Catalog {
		if t.ISRC == isrc {
			return &t, nil
		}
	}
	return nil, shared.ErrTrackNotFound
}

func (f *FakePlatform) SearchByMetadata(ctx context.Context, artist, title string) ([]models.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SearchByMetadata " + artist + " " + title)
	var out []models.Track
	for _, t := range f.Catalog {
		if t.Title == title {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *FakePlatform) CreateEntity(ctx context.Context, entity *models.Entity) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateEntity " + entity.Name)
	if f.MutateErr != nil {
		return "", f.MutateErr
	}
	f.nextID++
	id := fmt.Sprintf("%s-%d", f.Platform, f.nextID)
	clone := *entity
	clone.SetPlatformID(f.Platform, id)
	clone.Members = append([]models.Track(nil), entity.Members...)
	f.Entities[id] = &clone
	return id, nil
}

func (f *FakePlatform) ReplaceMembers(ctx context.Context, kind models.EntityKind, platformID string, members []models.Track) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ReplaceMembers " + platformID)
	if f.MutateErr != nil {
		return f.MutateErr
	}
	entity, ok := f.Entities[platformID]
	if !ok {
		return shared.ErrEntityNotFound
	}
	kept := make([]models.Track, 0, len(members))
	for _, m := range members {
		if m.PlatformID(f.Platform) != "" {
			kept = append(kept, m)
		}
	}
	entity.Members = kept
	return nil
}

func (f *FakePlatform) UpdateEntityMeta(ctx context.Context, platformID string, meta *models.MetaDelta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateEntityMeta " + platformID)
	if f.MutateErr != nil {
		return f.MutateErr
	}
	entity, ok := f.Entities[platformID]
	if !ok {
		return shared.ErrEntityNotFound
	}
	if meta.Name != nil {
		entity.Name = *meta.Name
	}
	if meta.Description != nil {
		entity.Description = *meta.Description
	}
	return nil
}

func (f *FakePlatform) DeleteEntity(ctx context.Context, kind models.EntityKind, platformID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteEntity " + platformID)
	if f.MutateErr != nil {
		return f.MutateErr
	}
	if _, ok := f.Entities[platformID]; !ok {
		return shared.ErrEntityNotFound
	}
	delete(f.Entities, platformID)
	return nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

