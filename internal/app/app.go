// Package app wires a configured warehouse into a running service: storage,
// catalog client, one partition registrar per streaming table, the scheduler
// and the health and trigger endpoints.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	httpapi "github.com/streamhouse/streamhouse/internal/api/http"
	"github.com/streamhouse/streamhouse/internal/catalog"
	"github.com/streamhouse/streamhouse/internal/config"
	"github.com/streamhouse/streamhouse/internal/delivery"
	sherrors "github.com/streamhouse/streamhouse/internal/errors"
	"github.com/streamhouse/streamhouse/internal/observability"
	"github.com/streamhouse/streamhouse/internal/reconcile"
	"github.com/streamhouse/streamhouse/internal/registrar"
	"github.com/streamhouse/streamhouse/internal/scheduler"
	"github.com/streamhouse/streamhouse/internal/server"
	"github.com/streamhouse/streamhouse/internal/storage"
	"github.com/streamhouse/streamhouse/internal/warehouse"
	"github.com/streamhouse/streamhouse/pkg/types"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "streamhouse"

// App manages the service lifecycle.
type App struct {
	cfg *config.Config

	// Shared resources
	storage  storage.ObjectStorage
	client   catalog.Client
	lister   catalog.PartitionLister // nil when the catalog cannot list partitions
	shutdown *server.ShutdownManager

	warehouse  *warehouse.Warehouse
	registrars map[string]*registrar.Registrar
	scheduler  *scheduler.Scheduler
	sink       *delivery.Sink
	stats      *observability.TickStats

	httpServer *http.Server
	listener   net.Listener

	// Lifecycle
	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// New resolves and validates cfg, then builds every component. Nothing is
// scheduled or served until Start.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Resolve(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	a := &App{
		cfg:        cfg,
		registrars: make(map[string]*registrar.Registrar),
		stats:      observability.NewTickStats(),
		shutdown:   server.NewShutdownManager(server.DefaultShutdownConfig()),
	}

	if err := a.initSharedResources(ctx); err != nil {
		a.shutdown.Shutdown(context.Background(), "initialization failed")
		return nil, fmt.Errorf("failed to initialize shared resources: %w", err)
	}

	wh, err := BuildWarehouse(cfg)
	if err != nil {
		a.shutdown.Shutdown(context.Background(), "initialization failed")
		return nil, err
	}
	a.warehouse = wh

	if err := a.initRegistrars(); err != nil {
		a.shutdown.Shutdown(context.Background(), "initialization failed")
		return nil, err
	}

	a.sink = delivery.NewSink(a.storage, delivery.SinkConfig{Compress: cfg.Delivery.Compress})
	return a, nil
}

// initSharedResources initializes storage and the catalog client.
func (a *App) initSharedResources(ctx context.Context) error {
	var err error

	switch a.cfg.Storage.Type {
	case "local":
		a.storage, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case "s3":
		a.storage, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, storage.S3Config{
			Region:       a.cfg.Storage.S3.Region,
			Endpoint:     a.cfg.Storage.S3.Endpoint,
			UsePathStyle: a.cfg.Storage.S3.UsePathStyle,
		})
	default:
		return fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	log.Printf("app: storage initialized type=%s root=%s", a.cfg.Storage.Type, a.cfg.Storage.Root)

	switch a.cfg.Catalog.Type {
	case "sqlite":
		sqlite, err := catalog.NewSQLiteCatalog(a.cfg.Catalog.Path)
		if err != nil {
			return fmt.Errorf("failed to initialize catalog: %w", err)
		}
		a.client = sqlite
		a.lister = sqlite
		a.shutdown.RegisterCloser(sqlite)
		log.Printf("app: sqlite catalog initialized path=%s", a.cfg.Catalog.Path)
	case "athena":
		athena, err := catalog.NewAthenaClient(ctx, catalog.AthenaConfig{
			Region:          a.cfg.Region,
			Database:        a.cfg.Database,
			ResultsLocation: a.cfg.Catalog.ResultsLocation,
			WorkGroup:       a.cfg.Catalog.WorkGroup,
			PollInterval:    a.cfg.Catalog.PollInterval,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize catalog: %w", err)
		}
		a.client = athena
		log.Printf("app: athena catalog initialized region=%s results=%s", a.cfg.Region, a.cfg.Catalog.ResultsLocation)
	default:
		return fmt.Errorf("unsupported catalog type: %s", a.cfg.Catalog.Type)
	}
	return nil
}

// initRegistrars creates one registrar per streaming table and schedules it.
func (a *App) initRegistrars() error {
	a.scheduler = scheduler.New(scheduler.Options{
		IntervalOverride: a.cfg.ScheduleOverride(),
		OnResult:         a.recordResult,
	})
	a.shutdown.RegisterCloser(server.CloserFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Catalog.Timeout)
		defer cancel()
		return a.scheduler.Stop(ctx)
	}))

	for _, rc := range a.warehouse.RegistrarConfigs() {
		r, err := registrar.New(rc, a.client, registrar.Options{Timeout: a.cfg.Catalog.Timeout})
		if err != nil {
			return err
		}
		if err := a.scheduler.Add(r, rc.Schedule); err != nil {
			return err
		}
		a.registrars[rc.Table] = r
	}
	return nil
}

func (a *App) recordResult(r scheduler.Result) {
	var d time.Duration
	if r.Tick != nil {
		d = r.Tick.Duration
	}
	a.stats.Record(r.Table, time.Now(), d, r.Err, r.Manual)
}

// BuildWarehouse composes the warehouse declared by cfg. cfg must be resolved.
func BuildWarehouse(cfg *config.Config) (*warehouse.Warehouse, error) {
	wh, err := warehouse.New(cfg.Database, warehouse.Options{
		StorageRoot:     cfg.Storage.Root,
		ResultsLocation: cfg.Catalog.ResultsLocation,
		Region:          cfg.Region,
		Schedule:        cfg.Registrar.Schedule,
		Window:          cfg.Registrar.Window,
	})
	if err != nil {
		return nil, err
	}

	for _, t := range cfg.Tables {
		if t.Streaming {
			keyName := t.PartitionKey
			if keyName == "" {
				keyName = cfg.Registrar.PartitionKey
			}
			_, err = wh.AddStreamingTable(t.Name, warehouse.StreamingTableArgs{
				Columns:          t.Columns,
				ShardCount:       t.ShardCount(cfg.Stage),
				PartitionKeyName: keyName,
				Window:           t.Window,
				Schedule:         t.Schedule,
				Format:           types.StorageFormat(t.Format),
			})
		} else {
			_, err = wh.AddTable(t.Name, warehouse.TableArgs{
				Columns:       t.Columns,
				PartitionKeys: t.PartitionKeys,
				Format:        types.StorageFormat(t.Format),
			})
		}
		if err != nil {
			return nil, err
		}
	}
	return wh, nil
}

// Start begins scheduled registration and serves the HTTP endpoints.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	if a.cfg.HTTP.Addr != "" {
		if err := a.startHTTP(); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	a.scheduler.Start()
	log.Printf("app: started database=%s stage=%s tables=%d", a.cfg.Database, a.cfg.Stage, len(a.registrars))
	return nil
}

func (a *App) startHTTP() error {
	mux := http.NewServeMux()
	middleware := httpapi.ChainMiddleware(
		server.ShutdownMiddleware(a.shutdown),
		httpapi.DefaultMiddleware(),
	)
	mux.Handle("/trigger", middleware(httpapi.NewTriggerHandler(a.scheduler)))
	mux.Handle("/health", httpapi.HealthHandler(ServiceName, a.cfg.Database, a.scheduler.Tables, a.stats.Failing))
	mux.Handle("/stats", httpapi.StatsHandler(a.stats))

	ln, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return err
	}
	a.listener = ln
	a.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("app: HTTP server listening on %s", ln.Addr())
		if err := a.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("app: HTTP server error: %v", err)
		}
	}()

	a.shutdown.RegisterCloser(server.CloserFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := a.httpServer.Shutdown(ctx)
		a.wg.Wait()
		return err
	}))
	return nil
}

// Addr returns the HTTP listen address, empty when not serving.
func (a *App) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Stop stops the HTTP server and the scheduler, then closes the catalog.
// It is safe to call on an app that was never started.
func (a *App) Stop(ctx context.Context) error {
	err := a.shutdown.Shutdown(ctx, "stop requested")
	log.Printf("app: stopped")
	return err
}

// WaitForShutdown blocks until a shutdown signal is received or ctx ends.
func (a *App) WaitForShutdown(ctx context.Context) error {
	return a.shutdown.ListenForSignals(ctx)
}

// Config returns the resolved configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Warehouse returns the composed warehouse.
func (a *App) Warehouse() *warehouse.Warehouse {
	return a.warehouse
}

// Storage returns the object storage backend.
func (a *App) Storage() storage.ObjectStorage {
	return a.storage
}

// Stats returns the tick statistics of every table that has ticked.
func (a *App) Stats() []observability.TableStats {
	return a.stats.Snapshot()
}

// Tick runs one table's registrar now.
func (a *App) Tick(ctx context.Context, table string, ref time.Time) (*registrar.TickResult, error) {
	return a.scheduler.Trigger(ctx, table, ref)
}

// TickAll runs every registrar once at ref.
func (a *App) TickAll(ctx context.Context, ref time.Time) []scheduler.Result {
	return a.scheduler.RunOnce(ctx, ref)
}

// Render returns the statement a tick at ref would submit, without running it.
func (a *App) Render(table string, ref time.Time) ([]string, string, error) {
	r, ok := a.registrars[table]
	if !ok {
		return nil, "", sherrors.NotFound("registrar", table)
	}
	return r.Render(ref)
}

// Deliver writes records to a streaming table's location as the delivery
// pipeline would.
func (a *App) Deliver(ctx context.Context, table string, records []delivery.Record, at time.Time) ([]string, error) {
	binding, err := a.warehouse.GetInputStream(table)
	if err != nil {
		return nil, err
	}
	prefix, err := a.warehouse.ObjectPrefix(table)
	if err != nil {
		return nil, err
	}
	return a.sink.Deliver(ctx, delivery.Target{Binding: *binding, Prefix: prefix}, records, at)
}

// Generate delivers n synthetic events to table.
func (a *App) Generate(ctx context.Context, table string, n int, at time.Time) ([]string, error) {
	records, err := delivery.NewGenerator(table).Batch(n)
	if err != nil {
		return nil, err
	}
	return a.Deliver(ctx, table, records, at)
}

// Drift compares a table's stored hour keys with its catalog partitions.
func (a *App) Drift(ctx context.Context, table string) (*reconcile.DriftReport, error) {
	if a.lister == nil {
		return nil, sherrors.Configuration("catalog type %s cannot list partitions", a.cfg.Catalog.Type)
	}
	if _, err := a.warehouse.GetTable(table); err != nil {
		return nil, err
	}
	prefix, err := a.warehouse.ObjectPrefix(table)
	if err != nil {
		return nil, err
	}
	return reconcile.Drift(ctx, a.lister, a.storage, reconcile.Target{
		Database: a.cfg.Database,
		Table:    table,
		Prefix:   prefix,
	})
}

// Partitions returns the catalog partitions of a table.
func (a *App) Partitions(ctx context.Context, table string) ([]catalog.Partition, error) {
	if a.lister == nil {
		return nil, sherrors.Configuration("catalog type %s cannot list partitions", a.cfg.Catalog.Type)
	}
	return a.lister.ListPartitions(ctx, a.cfg.Database, table)
}
