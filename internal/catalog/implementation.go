// internal/catalog/implementation.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/assets"
)

const instrumentationName = "storefront/catalog"

// service implements the Service interface.
//
// There is no transaction spanning the record store and the asset store, so
// every dual write is ordered to keep the record store authoritative: an asset
// is stored before any record points at it, and deleted only after no
// committed record points at it any more. The worst a failure can leave
// behind is an orphaned asset.
type service struct {
	records RecordStore
	assets  AssetStore

	log    zerolog.Logger
	tracer trace.Tracer

	compensations metric.Int64Counter
	orphans       metric.Int64Counter

	cleanupTimeout  time.Duration
	cleanupTries    uint
	cleanupInterval time.Duration
}

type config struct {
	logger          zerolog.Logger
	tracerProvider  trace.TracerProvider
	meterProvider   metric.MeterProvider
	cleanupTimeout  time.Duration
	cleanupTries    uint
	cleanupInterval time.Duration
}

// Option configures the service.
type Option func(*config)

func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) { c.tracerProvider = tp }
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) { c.meterProvider = mp }
}

// WithCleanupPolicy bounds the best-effort asset deletes issued as
// compensations and after commits: at most tries attempts, starting interval
// apart and backing off exponentially, all within timeout.
func WithCleanupPolicy(timeout time.Duration, tries uint, interval time.Duration) Option {
	return func(c *config) {
		c.cleanupTimeout = timeout
		c.cleanupTries = tries
		c.cleanupInterval = interval
	}
}

// NewService creates a new catalog service instance.
func NewService(records RecordStore, store AssetStore, opts ...Option) Service {
	cfg := config{
		logger:          zerolog.Nop(),
		tracerProvider:  otel.GetTracerProvider(),
		meterProvider:   otel.GetMeterProvider(),
		cleanupTimeout:  10 * time.Second,
		cleanupTries:    3,
		cleanupInterval: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	meter := cfg.meterProvider.Meter(instrumentationName)
	compensations, err := meter.Int64Counter("catalog.compensations",
		metric.WithDescription("Assets deleted because the record write that would reference them failed"))
	if err != nil {
		compensations = noop.Int64Counter{}
	}
	orphans, err := meter.Int64Counter("catalog.assets.orphaned",
		metric.WithDescription("Assets left unreferenced because a cleanup delete failed"))
	if err != nil {
		orphans = noop.Int64Counter{}
	}

	return &service{
		records:         records,
		assets:          store,
		log:             cfg.logger.With().Str("component", "catalog").Logger(),
		tracer:          cfg.tracerProvider.Tracer(instrumentationName),
		compensations:   compensations,
		orphans:         orphans,
		cleanupTimeout:  cfg.cleanupTimeout,
		cleanupTries:    cfg.cleanupTries,
		cleanupInterval: cfg.cleanupInterval,
	}
}

// CreateItem stores the upload (if any), then persists the record. If the
// record cannot be saved the new asset is deleted again.
func (s *service) CreateItem(ctx context.Context, fields Fields, upload *Upload) (Item, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.create")
	defer span.End()

	if err := fields.Validate(); err != nil {
		return Item{}, fail(span, err)
	}
	item := newItem(fields)

	compensation := func() {}
	if upload.present() {
		ref, err := s.assets.Store(ctx, upload.Data, upload.Filename)
		if err != nil {
			return Item{}, fail(span, storageErr("store asset", err))
		}
		span.SetAttributes(attribute.String("asset.ref", ref.String()))
		item = item.withImage(ref)

		compensation = func() {
			s.log.Warn().Str("asset", ref.String()).Msg("compensating for failed create: deleting new asset")
			s.compensations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "create")))
			s.discardAsset(ctx, ref, "create compensation")
		}
	}

	saved, err := s.records.Save(ctx, item)
	if err != nil {
		compensation()
		return Item{}, fail(span, persistenceErr("save item", err))
	}

	span.SetAttributes(attribute.String("item.id", saved.ID))
	s.log.Info().Str("item", saved.ID).Str("asset", saved.Image.String()).Msg("item created")
	return saved, nil
}

// GetItem reads a single item from the record store.
func (s *service) GetItem(ctx context.Context, id string) (Item, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.get", trace.WithAttributes(attribute.String("item.id", id)))
	defer span.End()

	item, err := s.load(ctx, id)
	if err != nil {
		return Item{}, fail(span, err)
	}
	return item, nil
}

// ListItems returns every item in the record store.
func (s *service) ListItems(ctx context.Context) ([]Item, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.list")
	defer span.End()

	items, err := s.records.FindAll(ctx)
	if err != nil {
		return nil, fail(span, persistenceErr("list items", err))
	}
	if items == nil {
		items = []Item{}
	}
	span.SetAttributes(attribute.Int("items.count", len(items)))
	return items, nil
}

// UpdateItem replaces the item's fields and, when an upload is given, its
// asset. The new asset is stored before the record is written and the old one
// is deleted only after the write commits, so no committed record ever points
// at a missing asset.
func (s *service) UpdateItem(ctx context.Context, id string, fields Fields, upload *Upload) (Item, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.update", trace.WithAttributes(attribute.String("item.id", id)))
	defer span.End()

	current, err := s.load(ctx, id)
	if err != nil {
		return Item{}, fail(span, err)
	}

	next := current.withFields(fields.normalized())
	if err := fields.Validate(); err != nil {
		return Item{}, fail(span, err)
	}

	compensation := func() {}
	if upload.present() {
		ref, err := s.assets.Store(ctx, upload.Data, upload.Filename)
		if err != nil {
			return Item{}, fail(span, storageErr("store asset", err))
		}
		span.SetAttributes(attribute.String("asset.ref", ref.String()))
		next = next.withImage(ref)

		compensation = func() {
			s.log.Warn().Str("item", id).Str("asset", ref.String()).Msg("compensating for failed update: deleting new asset")
			s.compensations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "update")))
			s.discardAsset(ctx, ref, "update compensation")
		}
	}

	saved, err := s.records.Save(ctx, next)
	if err != nil {
		compensation()
		if errors.Is(err, ErrNotFound) && !errors.Is(err, ErrConflict) {
			return Item{}, fail(span, notFound(id))
		}
		return Item{}, fail(span, persistenceErr("save item", err))
	}

	if old := current.Image; !old.IsZero() && old != saved.Image {
		s.discardAsset(ctx, old, "replaced")
	}

	s.log.Info().Str("item", id).Int("version", saved.Version).Msg("item updated")
	return saved, nil
}

// DeleteItem removes the record, then its asset. A failure to delete the asset
// is logged and otherwise ignored: the record that gave it meaning is gone.
func (s *service) DeleteItem(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "catalog.delete", trace.WithAttributes(attribute.String("item.id", id)))
	defer span.End()

	current, err := s.load(ctx, id)
	if err != nil {
		return fail(span, err)
	}

	if err := s.records.DeleteByID(ctx, id, current.Version); err != nil {
		if errors.Is(err, ErrNotFound) && !errors.Is(err, ErrConflict) {
			return fail(span, notFound(id))
		}
		return fail(span, persistenceErr("delete item", err))
	}

	if !current.Image.IsZero() {
		s.discardAsset(ctx, current.Image, "item deleted")
	}

	s.log.Info().Str("item", id).Msg("item deleted")
	return nil
}

// FetchImage returns the bytes of a stored asset.
func (s *service) FetchImage(ctx context.Context, ref assets.Ref) ([]byte, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.fetch_image", trace.WithAttributes(attribute.String("asset.ref", ref.String())))
	defer span.End()

	data, err := s.assets.Fetch(ctx, ref)
	if errors.Is(err, assets.ErrNotFound) || errors.Is(err, assets.ErrInvalidRef) {
		return nil, fail(span, fmt.Errorf("image %s: %w", ref, ErrNotFound))
	}
	if err != nil {
		return nil, fail(span, storageErr("fetch asset", err))
	}
	return data, nil
}

func (s *service) load(ctx context.Context, id string) (Item, error) {
	item, err := s.records.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Item{}, notFound(id)
	}
	if err != nil {
		return Item{}, persistenceErr("load item", err)
	}
	return item, nil
}

// discardAsset deletes an asset nothing references any more. It runs detached
// from the caller's cancellation and never fails the calling operation; an
// asset that cannot be deleted is logged and counted as an orphan.
func (s *service) discardAsset(ctx context.Context, ref assets.Ref, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cleanupTimeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cleanupInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.assets.Delete(ctx, ref)
		if errors.Is(err, assets.ErrInvalidRef) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(s.cleanupTries))
	if err != nil {
		s.orphans.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
		s.log.Error().Err(err).Str("asset", ref.String()).Str("reason", reason).Msg("failed to delete asset, leaving orphan")
		return
	}
	s.log.Debug().Str("asset", ref.String()).Str("reason", reason).Msg("asset deleted")
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
