package catalog_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"storefront/internal/assets"
	"storefront/internal/catalog"
)

// TestNoDanglingReferences drives random operation sequences against stores
// that fail at random and checks after every step that no committed record
// points at a missing asset. As long as asset deletes never fail, there must
// not be any orphans either.
func TestNoDanglingReferences(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		fx := newFixture(t)
		orphansAllowed := false

		steps := rapid.IntRange(1, 25).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			failStore := rapid.Bool().Draw(rt, "failStore")
			failSave := rapid.Bool().Draw(rt, "failSave")
			failRecordDelete := rapid.Bool().Draw(rt, "failRecordDelete")
			failAssetDelete := rapid.IntRange(0, 4).Draw(rt, "failAssetDelete") == 0
			orphansAllowed = orphansAllowed || failAssetDelete

			fx.assets.set(func(f *faultyAssets) {
				f.failStore = failStore
				f.failDelete = failAssetDelete
			})
			fx.records.set(func(f *faultyRecords) {
				f.failSave = failSave
				f.failDelete = failRecordDelete
			})

			var upload *catalog.Upload
			if rapid.Bool().Draw(rt, "withImage") {
				upload = &catalog.Upload{Data: []byte(fmt.Sprintf("payload-%d", i)), Filename: "cover.jpg"}
			}
			fields := catalog.Fields{
				Title:  rapid.SampledFrom([]string{"Dune", ""}).Draw(rt, "title"),
				Author: "Herbert",
				Price:  decimal.NewFromInt(int64(rapid.IntRange(-1, 50).Draw(rt, "price"))),
			}

			existing, _ := fx.records.Memory.FindAll(ctx)
			id := "unknown-id"
			if len(existing) > 0 && rapid.IntRange(0, 4).Draw(rt, "pickExisting") > 0 {
				id = existing[rapid.IntRange(0, len(existing)-1).Draw(rt, "index")].ID
			}

			var err error
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				_, err = fx.svc.CreateItem(ctx, fields, upload)
			case 1:
				_, err = fx.svc.UpdateItem(ctx, id, fields, upload)
			case 2:
				err = fx.svc.DeleteItem(ctx, id)
			}
			checkErrorKind(rt, err)
			checkNoDangling(rt, fx)
			if !orphansAllowed {
				checkNoOrphans(rt, fx)
			}
		}
	})
}

func checkErrorKind(rt *rapid.T, err error) {
	if err == nil {
		return
	}
	kinds := 0
	for _, k := range []error{catalog.ErrValidation, catalog.ErrNotFound, catalog.ErrStorage, catalog.ErrPersistence} {
		if errors.Is(err, k) {
			kinds++
		}
	}
	if kinds != 1 {
		rt.Fatalf("error %v matches %d kinds", err, kinds)
	}
}

func checkNoDangling(rt *rapid.T, fx *fixture) {
	ctx := context.Background()
	items, err := fx.records.Memory.FindAll(ctx)
	if err != nil {
		rt.Fatalf("list records: %v", err)
	}
	for _, it := range items {
		if it.Image.IsZero() {
			continue
		}
		if _, err := fx.assets.FileStore.Fetch(ctx, it.Image); err != nil {
			rt.Fatalf("item %s references missing asset %s: %v", it.ID, it.Image, err)
		}
	}
}

func checkNoOrphans(rt *rapid.T, fx *fixture) {
	ctx := context.Background()
	items, _ := fx.records.Memory.FindAll(ctx)
	referenced := make(map[assets.Ref]bool)
	for _, it := range items {
		if !it.Image.IsZero() {
			referenced[it.Image] = true
		}
	}
	infos, err := fx.assets.FileStore.List(ctx)
	if err != nil {
		rt.Fatalf("list assets: %v", err)
	}
	for _, info := range infos {
		if !referenced[info.Ref] {
			rt.Fatalf("orphaned asset %s without any failed delete", info.Ref)
		}
	}
}
