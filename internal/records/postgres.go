// internal/records/postgres.go
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/catalog"
)

const schema = `
CREATE TABLE IF NOT EXISTS catalog_items (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	author      TEXT NOT NULL,
	price       NUMERIC(12,2) NOT NULL CHECK (price >= 0),
	description TEXT NOT NULL DEFAULT '',
	language    TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	publisher   TEXT NOT NULL DEFAULT '',
	image       TEXT UNIQUE,
	version     INT NOT NULL DEFAULT 1,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const itemColumns = `id, title, author, price, description, language, category, publisher, image, version, created_at, updated_at`

// Postgres stores items in the catalog_items table with optimistic
// concurrency on the version column.
type Postgres struct {
	db     *sql.DB
	tracer trace.Tracer
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{
		db:     db,
		tracer: otel.Tracer("storefront/records"),
	}
}

// EnsureSchema creates the catalog_items table if it is missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (p *Postgres) Save(ctx context.Context, item catalog.Item) (catalog.Item, error) {
	if item.ID == "" {
		return p.insert(ctx, item)
	}
	return p.update(ctx, item)
}

func (p *Postgres) insert(ctx context.Context, item catalog.Item) (catalog.Item, error) {
	item.ID = uuid.NewString()
	ctx, span := p.tracer.Start(ctx, "records.insert",
		trace.WithAttributes(attribute.String("item.id", item.ID)))
	defer span.End()

	err := p.db.QueryRowContext(ctx, `
		INSERT INTO catalog_items (id, title, author, price, description, language, category, publisher, image)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING price, version, created_at, updated_at
	`, item.ID, item.Title, item.Author, item.Price, item.Description, item.Language, item.Category, item.Publisher, item.Image,
	).Scan(&item.Price, &item.Version, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		return catalog.Item{}, fmt.Errorf("insert item: %w", translate(err))
	}
	return item, nil
}

func (p *Postgres) update(ctx context.Context, item catalog.Item) (catalog.Item, error) {
	ctx, span := p.tracer.Start(ctx, "records.update",
		trace.WithAttributes(
			attribute.String("item.id", item.ID),
			attribute.Int("expected.version", item.Version),
		),
	)
	defer span.End()

	err := p.db.QueryRowContext(ctx, `
		UPDATE catalog_items
		SET title = $3, author = $4, price = $5, description = $6, language = $7,
		    category = $8, publisher = $9, image = $10,
		    version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING price, version, created_at, updated_at
	`, item.ID, item.Version, item.Title, item.Author, item.Price, item.Description, item.Language, item.Category, item.Publisher, item.Image,
	).Scan(&item.Price, &item.Version, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		err = p.missOrConflict(ctx, item.ID, item.Version)
		span.SetAttributes(attribute.Bool("conflict.detected", errors.Is(err, catalog.ErrConflict)))
		return catalog.Item{}, err
	}
	if err != nil {
		span.RecordError(err)
		return catalog.Item{}, fmt.Errorf("update item %s: %w", item.ID, translate(err))
	}
	return item, nil
}

func (p *Postgres) FindByID(ctx context.Context, id string) (catalog.Item, error) {
	ctx, span := p.tracer.Start(ctx, "records.find",
		trace.WithAttributes(attribute.String("item.id", id)))
	defer span.End()

	row := p.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM catalog_items WHERE id = $1`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Item{}, fmt.Errorf("item %s: %w", id, catalog.ErrNotFound)
	}
	if err != nil {
		span.RecordError(err)
		return catalog.Item{}, fmt.Errorf("get item %s: %w", id, err)
	}
	return item, nil
}

func (p *Postgres) FindAll(ctx context.Context) ([]catalog.Item, error) {
	ctx, span := p.tracer.Start(ctx, "records.find_all")
	defer span.End()

	rows, err := p.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM catalog_items ORDER BY created_at, id`)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []catalog.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	span.SetAttributes(attribute.Int("items.loaded", len(items)))
	return items, nil
}

func (p *Postgres) DeleteByID(ctx context.Context, id string, version int) error {
	ctx, span := p.tracer.Start(ctx, "records.delete",
		trace.WithAttributes(
			attribute.String("item.id", id),
			attribute.Int("expected.version", version),
		),
	)
	defer span.End()

	res, err := p.db.ExecContext(ctx, `DELETE FROM catalog_items WHERE id = $1 AND version = $2`, id, version)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete item %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete item %s: %w", id, err)
	}
	if n == 0 {
		return p.missOrConflict(ctx, id, version)
	}
	return nil
}

// missOrConflict explains why a conditional write matched no row.
func (p *Postgres) missOrConflict(ctx context.Context, id string, version int) error {
	var current int
	err := p.db.QueryRowContext(ctx, `SELECT version FROM catalog_items WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("item %s: %w", id, catalog.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("query version of %s: %w", id, err)
	}
	return fmt.Errorf("item %s at version %d, have %d: %w", id, current, version, catalog.ErrConflict)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (catalog.Item, error) {
	var item catalog.Item
	err := row.Scan(
		&item.ID,
		&item.Title,
		&item.Author,
		&item.Price,
		&item.Description,
		&item.Language,
		&item.Category,
		&item.Publisher,
		&item.Image,
		&item.Version,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

// translate maps constraint violations to catalog errors.
func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", catalog.ErrConflict, pqErr.Message)
	}
	return err
}
