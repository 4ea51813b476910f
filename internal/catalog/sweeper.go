package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"storefront/internal/assets"
)

// DefaultSweepGrace is the minimum age of an unreferenced asset before the
// sweeper deletes it. Younger assets may belong to a create or update that
// has stored its asset but not yet committed the record.
const DefaultSweepGrace = time.Hour

// SweepStore is an asset store the sweeper can enumerate and delete from.
type SweepStore interface {
	AssetLister
	Delete(ctx context.Context, ref assets.Ref) error
}

// SweepReport summarises one sweep.
type SweepReport struct {
	Scanned    int
	Referenced int
	Young      int
	Orphans    []assets.Ref
	Deleted    int
	Failed     int
}

// Sweeper reclaims orphaned assets: assets no record references.
type Sweeper struct {
	records RecordStore
	assets  SweepStore
	grace   time.Duration
	log     zerolog.Logger
	now     func() time.Time
}

func NewSweeper(records RecordStore, store SweepStore, grace time.Duration, log zerolog.Logger) *Sweeper {
	if grace <= 0 {
		grace = DefaultSweepGrace
	}
	return &Sweeper{
		records: records,
		assets:  store,
		grace:   grace,
		log:     log.With().Str("component", "sweeper").Logger(),
		now:     time.Now,
	}
}

// Sweep deletes every orphan older than the grace period. With dryRun set
// orphans are only reported.
//
// The asset listing is taken before the record listing, so an asset stored
// and committed in between is seen as referenced, not as an orphan.
func (s *Sweeper) Sweep(ctx context.Context, dryRun bool) (SweepReport, error) {
	var report SweepReport

	infos, err := s.assets.List(ctx)
	if err != nil {
		return report, storageErr("list assets", err)
	}
	items, err := s.records.FindAll(ctx)
	if err != nil {
		return report, persistenceErr("list items", err)
	}

	referenced := make(map[assets.Ref]struct{}, len(items))
	for _, it := range items {
		if !it.Image.IsZero() {
			referenced[it.Image] = struct{}{}
		}
	}

	cutoff := s.now().Add(-s.grace)
	for _, info := range infos {
		report.Scanned++
		if _, ok := referenced[info.Ref]; ok {
			report.Referenced++
			continue
		}
		if info.ModTime.After(cutoff) {
			report.Young++
			continue
		}
		report.Orphans = append(report.Orphans, info.Ref)
		if dryRun {
			continue
		}
		if err := s.assets.Delete(ctx, info.Ref); err != nil {
			report.Failed++
			s.log.Warn().Err(err).Str("asset", info.Ref.String()).Msg("failed to delete orphan")
			continue
		}
		report.Deleted++
	}

	s.log.Info().
		Int("scanned", report.Scanned).
		Int("orphans", len(report.Orphans)).
		Int("deleted", report.Deleted).
		Int("failed", report.Failed).
		Bool("dry_run", dryRun).
		Msg("sweep finished")

	if report.Failed > 0 {
		return report, storageErr("delete orphans", fmt.Errorf("%d of %d deletes failed", report.Failed, len(report.Orphans)))
	}
	return report, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx, false); err != nil {
				s.log.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}
