package catalog_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"storefront/internal/assets"
	"storefront/internal/catalog"
	"storefront/internal/records"
)

var errInjected = errors.New("injected failure")

// faultyAssets wraps a real asset store and fails on demand.
type faultyAssets struct {
	*assets.FileStore

	mu          sync.Mutex
	failStore   bool
	failDelete  bool
	onDelete    func(ref assets.Ref)
	deleteCalls []assets.Ref
}

func (f *faultyAssets) Store(ctx context.Context, data []byte, hint string) (assets.Ref, error) {
	f.mu.Lock()
	fail := f.failStore
	f.mu.Unlock()
	if fail {
		return "", errInjected
	}
	return f.FileStore.Store(ctx, data, hint)
}

func (f *faultyAssets) Delete(ctx context.Context, ref assets.Ref) error {
	f.mu.Lock()
	fail, hook := f.failDelete, f.onDelete
	f.deleteCalls = append(f.deleteCalls, ref)
	f.mu.Unlock()
	if hook != nil {
		hook(ref)
	}
	if fail {
		return errInjected
	}
	return f.FileStore.Delete(ctx, ref)
}

func (f *faultyAssets) set(fn func(f *faultyAssets)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *faultyAssets) refs(t *testing.T) []assets.Ref {
	t.Helper()
	infos, err := f.List(context.Background())
	require.NoError(t, err)
	out := make([]assets.Ref, len(infos))
	for i, info := range infos {
		out[i] = info.Ref
	}
	return out
}

// faultyRecords wraps the in-memory record store and fails on demand.
type faultyRecords struct {
	*records.Memory

	mu         sync.Mutex
	failSave   bool
	failDelete bool
	failFind   bool
	beforeSave func(item catalog.Item)
}

func (f *faultyRecords) Save(ctx context.Context, item catalog.Item) (catalog.Item, error) {
	f.mu.Lock()
	fail, hook := f.failSave, f.beforeSave
	f.mu.Unlock()
	if hook != nil {
		hook(item)
	}
	if fail {
		return catalog.Item{}, errInjected
	}
	return f.Memory.Save(ctx, item)
}

func (f *faultyRecords) FindByID(ctx context.Context, id string) (catalog.Item, error) {
	f.mu.Lock()
	fail := f.failFind
	f.mu.Unlock()
	if fail {
		return catalog.Item{}, errInjected
	}
	return f.Memory.FindByID(ctx, id)
}

func (f *faultyRecords) DeleteByID(ctx context.Context, id string, version int) error {
	f.mu.Lock()
	fail := f.failDelete
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.Memory.DeleteByID(ctx, id, version)
}

func (f *faultyRecords) set(fn func(f *faultyRecords)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type fixture struct {
	svc     catalog.Service
	assets  *faultyAssets
	records *faultyRecords
}

func newFixture(t testing.TB, opts ...catalog.Option) *fixture {
	t.Helper()
	fs, err := assets.NewFileStore(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)

	fa := &faultyAssets{FileStore: fs}
	fr := &faultyRecords{Memory: records.NewMemory()}
	opts = append([]catalog.Option{catalog.WithCleanupPolicy(time.Second, 2, time.Millisecond)}, opts...)
	return &fixture{
		svc:     catalog.NewService(fr, fa, opts...),
		assets:  fa,
		records: fr,
	}
}

func duneFields() catalog.Fields {
	return catalog.Fields{
		Title:       "Dune",
		Author:      "Herbert",
		Price:       decimal.RequireFromString("12.50"),
		Description: "Desert planet, spice, sandworms.",
		Language:    "EN",
		Category:    "SciFi",
		Publisher:   "Ace",
	}
}

var jpeg = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
