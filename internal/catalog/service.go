// internal/catalog/service.go
package catalog

import (
	"context"

	"storefront/internal/assets"
)

// Service defines the interface for the catalog service.
type Service interface {
	CreateItem(ctx context.Context, fields Fields, upload *Upload) (Item, error)
	GetItem(ctx context.Context, id string) (Item, error)
	ListItems(ctx context.Context) ([]Item, error)
	UpdateItem(ctx context.Context, id string, fields Fields, upload *Upload) (Item, error)
	DeleteItem(ctx context.Context, id string) error
	FetchImage(ctx context.Context, ref assets.Ref) ([]byte, error)
}

// RecordStore persists items. Implementations assign the ID on the first Save
// of an item with an empty ID. A Save of an existing item and DeleteByID only
// succeed while the stored version equals the given one; otherwise they fail
// with an error wrapping ErrConflict. Missing records are reported with an
// error wrapping ErrNotFound.
type RecordStore interface {
	Save(ctx context.Context, item Item) (Item, error)
	FindByID(ctx context.Context, id string) (Item, error)
	FindAll(ctx context.Context) ([]Item, error)
	DeleteByID(ctx context.Context, id string, version int) error
}

// AssetStore holds the binary assets items point at.
type AssetStore interface {
	Store(ctx context.Context, data []byte, nameHint string) (assets.Ref, error)
	Delete(ctx context.Context, ref assets.Ref) error
	Fetch(ctx context.Context, ref assets.Ref) ([]byte, error)
}

// AssetLister is implemented by asset stores that can enumerate their content.
type AssetLister interface {
	List(ctx context.Context) ([]assets.Info, error)
}
