// Package app wires configuration, storage and the network services into one
// process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"drilltrack/internal/config"
	"drilltrack/internal/db"
	discoverymanager "drilltrack/internal/discovery_manager"
	mdnsdiscovery "drilltrack/internal/discovery_manager/discovery_mechanism/mdns_discovery"
	"drilltrack/internal/ingestion"
	"drilltrack/internal/metrics"
	"drilltrack/internal/netaddr"
	"drilltrack/internal/netstate"
	"drilltrack/internal/spool"
	surveystorage "drilltrack/internal/storage/survey_storage"
	"drilltrack/internal/util/logger/sl"

	"go.etcd.io/bbolt"
)

// Store is a persistence gateway that owns its database handle.
type Store interface {
	ingestion.Gateway
	io.Closer
}

type App struct {
	cfg *config.Config
	log *slog.Logger

	State     *netstate.State
	Metrics   *metrics.Metrics
	Store     Store
	Ingestor  *ingestion.Ingestor
	Discovery *discoverymanager.Service
	Ingestion *ingestion.Server
	Spool     *spool.Spool
}

// New opens storage and builds every service. Nothing is bound until Start.
func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	const op = "app.New"

	store, err := OpenStore(cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	state := netstate.New()
	m := metrics.New()
	resolver := netaddr.NewResolver(nil)
	ingestor := ingestion.NewIngestor(store, m, log)

	discovery := discoverymanager.NewService(discoveryConfig(cfg.Discovery), state, resolver, m, log)
	if cfg.Discovery.MDNS {
		discovery.RegisterDiscoveryMechanism(mdnsdiscovery.NewMDNSDiscovery(log))
	}

	a := &App{
		cfg:       cfg,
		log:       log,
		State:     state,
		Metrics:   m,
		Store:     store,
		Ingestor:  ingestor,
		Discovery: discovery,
		Ingestion: ingestion.NewServer(ingestionConfig(cfg.Ingestion), state, ingestor, resolver, m, log),
	}

	if cfg.Spool.Dir != "" {
		sp, err := spool.New(ingestor, spool.Config{
			Dir:              cfg.Spool.Dir,
			DebounceDuration: cfg.Spool.Debounce,
		}, m, log)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		a.Spool = sp
	}

	return a, nil
}

// OpenStore opens the backend selected by cfg.Driver.
func OpenStore(cfg config.StorageConfig, log *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case config.StorageBolt:
		store, err := db.NewSurveyDB(db.Config{
			Path:    cfg.Path,
			Options: &bbolt.Options{Timeout: cfg.Timeout},
		})
		if err != nil {
			return nil, fmt.Errorf("open bolt storage %s: %w", cfg.Path, err)
		}
		return store, nil
	case config.StorageSQLite, "":
		store, err := surveystorage.New(surveystorage.Config{
			DBPath:            cfg.Path,
			ConnectionTimeout: cfg.Timeout,
		}, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q", config.ErrInvalidConfig, cfg.Driver)
	}
}

// Start brings up the services enabled in config. The ingestion server starts
// first so discovery announces its real port.
func (a *App) Start(ctx context.Context) error {
	const op = "app.Start"

	if !a.cfg.Ingestion.Disabled {
		if _, err := a.Ingestion.Start(ctx, ingestion.Options{Port: uint16(a.cfg.Ingestion.Port)}); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if !a.cfg.Discovery.Disabled {
		opts := discoverymanager.Options{
			Port:       uint16(a.cfg.Discovery.Port),
			ServerName: a.cfg.Discovery.ServerName,
		}
		if _, err := a.Discovery.Start(ctx, opts); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if a.Spool != nil {
		if err := a.Spool.Start(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

// Stop stops every service and closes storage. It is safe to call after a
// failed Start.
func (a *App) Stop(ctx context.Context) error {
	var errs []error

	a.Discovery.Stop()
	a.Ingestion.Stop(ctx)

	if a.Spool != nil {
		if err := a.Spool.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}

	err := errors.Join(errs...)
	if err != nil {
		a.log.Error("Shutdown finished with errors", sl.Err(err))
	}
	return err
}

func discoveryConfig(c config.DiscoveryConfig) discoverymanager.Config {
	cfg := discoverymanager.DefaultConfig()
	cfg.AnnouncePort = c.AnnouncePort
	cfg.BroadcastAddress = c.BroadcastAddress
	cfg.AnnounceInterval = c.AnnounceInterval
	cfg.RefreshInterval = c.RefreshInterval
	cfg.ResponseRate = c.ResponseRate
	cfg.ResponseBurst = c.ResponseBurst
	cfg.Version = c.Version
	return cfg
}

func ingestionConfig(c config.IngestionConfig) ingestion.Config {
	cfg := ingestion.DefaultConfig()
	cfg.CounterSyncInterval = c.CounterSyncInterval
	cfg.ShutdownTimeout = c.ShutdownTimeout
	cfg.MaxBodyBytes = c.MaxBodyBytes
	cfg.CORSOrigins = c.CORSOrigins
	return cfg
}
