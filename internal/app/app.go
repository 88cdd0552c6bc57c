package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/corebank/ledgerd/internal/config"
	"github.com/corebank/ledgerd/internal/domain"
	"github.com/corebank/ledgerd/internal/fraud"
	"github.com/corebank/ledgerd/internal/handlers"
	"github.com/corebank/ledgerd/internal/ledger"
	"github.com/corebank/ledgerd/internal/persistence"
	"github.com/corebank/ledgerd/internal/pg"
	"github.com/corebank/ledgerd/internal/processor"
	"github.com/corebank/ledgerd/internal/server"
	"github.com/corebank/ledgerd/pkg/auth"
	"github.com/corebank/ledgerd/pkg/logger"
)

type ApplicationI interface {
	Start(ctx context.Context) error
	Wait(ctx context.Context, cancel context.CancelFunc) error
}

type Application struct {
	cfg   *config.Config
	shell *ledger.Safe
	proc  *processor.Processor
	api   *handlers.Handlers
	tcp   *server.Server
	sink  *persistence.Sink
	fraud *fraud.Agent

	errCh chan error
	wg    sync.WaitGroup
	ready bool
}

func New() *Application {
	return &Application{
		errCh: make(chan error),
	}
}

// fanout republishes each committed event to every attached sink.
type fanout []domain.Sink

func (f fanout) Record(ev domain.Event) {
	for _, s := range f {
		s.Record(ev)
	}
}

func (a *Application) Start(ctx context.Context) error {
	cfg := config.New()
	a.cfg = cfg

	err := logger.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("can't init logger: %w", err)
	}

	var sinks fanout

	if cfg.Database != "" {
		pool, err := getPgxpool(ctx, cfg)
		if err != nil {
			zap.L().Error("build pgx pool failed: ", zap.Error(err))
			return fmt.Errorf("can't build pgx pool: %w", err)
		}
		if err := pg.RunMigrations(pool); err != nil {
			zap.L().Error("migrations failed: ", zap.Error(err))
			return fmt.Errorf("can't run migrations: %w", err)
		}
		repo := persistence.New(pg.New(pool), pg.NewTXManager(pool))
		a.sink = persistence.NewSink(repo, cfg.SinkBuffer)
		a.sink.Start(ctx)
		sinks = append(sinks, a.sink)
	} else {
		zap.L().Info("no database configured, mirror disabled")
	}

	a.fraud = fraud.New(cfg.FraudWindow, 1000, nil)
	a.fraud.Start(ctx)
	sinks = append(sinks, a.fraud)

	engine := ledger.NewEngine(ledger.WithSink(sinks))
	a.shell = ledger.NewSafe(engine)

	a.proc = processor.New(a.shell, cfg.Workers, cfg.QueueCapacity)
	a.proc.Start(ctx)

	a.api = handlers.New(a.proc, nil)
	a.tcp = server.New(cfg.TCPAddress, a.proc, auth.NewAuthenticator(&auth.HashService{}, &auth.JWTService{}))

	if err = a.startHTTPServer(ctx); err != nil {
		return fmt.Errorf("can't start http server: %w", err)
	}
	if err = a.tcp.Start(ctx); err != nil {
		return fmt.Errorf("can't start tcp server: %w", err)
	}

	a.ready = true
	zap.L().Info("all systems started successfully")
	return nil
}

func getPgxpool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	cfgpool, err := pgxpool.ParseConfig(cfg.Database)
	if err != nil {
		return nil, err
	}
	dbpool, err := pgxpool.NewWithConfig(ctx, cfgpool)
	if err != nil {
		return nil, err
	}
	if err = dbpool.Ping(ctx); err != nil {
		return nil, err
	}
	return dbpool, nil
}

func (a *Application) startHTTPServer(ctx context.Context) error {
	router := chi.NewRouter()
	a.api.InitRoutes(router)
	srv := http.Server{
		Addr:    a.cfg.Address,
		Handler: router,
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		<-ctx.Done()

		sCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(sCtx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		zap.L().Info("starting http server on port", zap.String("port", a.cfg.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.errCh <- fmt.Errorf("http server exited with error: %w", err)
		}
	}()

	return nil
}

func (a *Application) Wait(ctx context.Context, cancel context.CancelFunc) error {
	var appErr error

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()

		for err := range a.errCh {
			cancel()
			zap.L().Error(err.Error())
			appErr = err
		}
	}()

	<-ctx.Done()
	if a.tcp != nil {
		a.tcp.Wait()
	}
	if a.proc != nil {
		a.proc.Wait()
	}
	if a.fraud != nil {
		a.fraud.Wait()
	}
	if a.sink != nil {
		a.sink.Wait()
	}
	a.wg.Wait()
	close(a.errCh)
	wg.Wait()

	return appErr
}
