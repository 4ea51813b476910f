package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"storefront/internal/assets"
	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/records"
	"storefront/internal/telemetry"
)

var rootCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Storefront catalog service",
	Long: `Catalog service for the storefront: item records with cover images.

Configuration is read from the environment (and a .env file when present).

COMMANDS:
  serve   Run the HTTP API
  sweep   Delete cover images no item references any more
`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// assetStore is what both the service and the sweeper need from a backend.
type assetStore interface {
	catalog.AssetStore
	catalog.AssetLister
}

// app holds the dependencies shared by every subcommand.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	records catalog.RecordStore
	assets  assetStore
	closers []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: telemetry.NewLogger(os.Stderr, cfg.LogLevel)}
	a.log.Debug().Msgf("config: %s", cfg)

	if err := a.openRecords(ctx); err != nil {
		a.close()
		return nil, err
	}
	if err := a.openAssets(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) openRecords(ctx context.Context) error {
	switch a.cfg.RecordStore {
	case "memory":
		a.log.Warn().Msg("using in-memory record store; records are lost on exit")
		a.records = records.NewMemory()
		return nil
	default:
		db, err := sql.Open("postgres", a.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("failed to reach database: %w", err)
		}
		pg := records.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to prepare schema: %w", err)
		}
		a.records = pg
		return nil
	}
}

func (a *app) openAssets(ctx context.Context) error {
	switch a.cfg.AssetStore {
	case "s3":
		s3, err := assets.NewS3Store(assets.S3Config{
			Endpoint:  a.cfg.S3Endpoint,
			Region:    a.cfg.S3Region,
			Bucket:    a.cfg.S3Bucket,
			AccessKey: a.cfg.S3AccessKey,
			SecretKey: a.cfg.S3SecretKey,
			UseSSL:    a.cfg.S3UseSSL,
			PathStyle: a.cfg.S3PathStyle,
		}, assets.WithLogger(a.log))
		if err != nil {
			return err
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			return err
		}
		a.assets = s3
	default:
		fs, err := assets.NewFileStore(a.cfg.UploadDir, assets.WithLogger(a.log))
		if err != nil {
			return err
		}
		a.assets = fs
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("close failed")
		}
	}
}
