package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/AntonStoeckl/lending-daemon-go/app/daemon"
	"github.com/AntonStoeckl/lending-daemon-go/app/features/borrow"
	"github.com/AntonStoeckl/lending-daemon-go/app/features/deliver"
	"github.com/AntonStoeckl/lending-daemon-go/app/features/expirequeueposition"
	"github.com/AntonStoeckl/lending-daemon-go/app/features/extend"
	"github.com/AntonStoeckl/lending-daemon-go/app/features/promote"
	"github.com/AntonStoeckl/lending-daemon-go/app/notify"
	"github.com/AntonStoeckl/lending-daemon-go/app/session"
	"github.com/AntonStoeckl/lending-daemon-go/app/shell"
	"github.com/AntonStoeckl/lending-daemon-go/app/shell/config"
	"github.com/AntonStoeckl/lending-daemon-go/app/shell/observable"
	"github.com/AntonStoeckl/lending-daemon-go/lending"
	"github.com/AntonStoeckl/lending-daemon-go/lending/memstore"
	"github.com/AntonStoeckl/lending-daemon-go/lending/oteladapters"
	"github.com/AntonStoeckl/lending-daemon-go/lending/postgresstore"
)

const instrumentationName = "github.com/AntonStoeckl/lending-daemon-go"

// observability bundles what every component receives through its WithLogger/WithMetrics/... options.
// Metrics and tracing stay nil unless OpenTelemetry is enabled.
type observability struct {
	logger           *slog.Logger
	sqlLogger        *slog.Logger
	contextualLogger lending.ContextualLogger
	metrics          lending.MetricsCollector
	tracing          lending.TracingCollector
}

// app is the wired process: store, rules, session and daemon scheduler.
type app struct {
	cfg     config.Config
	obs     observability
	store   lending.Store
	migrate func(ctx context.Context) error
	closers []func() error

	borrowHandler  shell.CommandHandler[borrow.Command, borrow.Result]
	deliverHandler shell.CommandHandler[deliver.Command, deliver.Result]
	extendHandler  shell.CommandHandler[extend.Command, extend.Result]
	promoteHandler shell.CommandHandler[promote.Command, promote.Result]
	expireHandler  shell.CommandHandler[expirequeueposition.Command, expirequeueposition.Result]

	session *session.Session
}

// newApp wires all components from the loaded configuration. Logs go to logOutput.
func newApp(ctx context.Context, opts *RootOptions, logOutput io.Writer) (*app, error) {
	a := &app{cfg: opts.Config}

	if err := a.init(ctx, opts, logOutput); err != nil {
		return nil, errors.Join(err, a.Close())
	}

	return a, nil
}

func (a *app) init(ctx context.Context, opts *RootOptions, logOutput io.Writer) error {
	if err := a.initObservability(ctx, logOutput); err != nil {
		return WrapExitError(ExitCommandError, "failed to set up observability", err)
	}

	if err := a.initStore(ctx, opts.Store); err != nil {
		return WrapExitError(ExitCommandError, "failed to open the lending store", err)
	}

	if err := a.initHandlers(); err != nil {
		return WrapExitError(ExitCommandError, "failed to create command handlers", err)
	}

	var err error

	a.session, err = session.New(
		a.store,
		session.WithClock(opts.now),
		session.WithPolicy(a.cfg.Lending.Policy()),
		session.WithBorrowHandler(a.borrowHandler),
		session.WithDeliverHandler(a.deliverHandler),
		session.WithExtendHandler(a.extendHandler),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create the session", err)
	}

	return nil
}

func (a *app) initObservability(ctx context.Context, logOutput io.Writer) error {
	handler, err := config.NewLogHandler(logOutput, a.cfg.Logging, false)
	if err != nil {
		return err
	}

	sqlHandler, err := config.NewLogHandler(logOutput, a.cfg.Logging, true)
	if err != nil {
		return err
	}

	a.obs.logger = slog.New(handler)
	a.obs.sqlLogger = slog.New(sqlHandler)

	if !a.cfg.OTel.Enabled {
		a.obs.contextualLogger = oteladapters.NewSlogBridgeLoggerWithHandler(instrumentationName, handler)
		return nil
	}

	providers, err := config.NewObservabilityProviders(ctx, a.cfg.OTel, Version)
	if err != nil {
		return err
	}

	a.closers = append(a.closers, providers.Shutdown)
	a.obs.contextualLogger = oteladapters.NewSlogBridgeLogger(instrumentationName)
	a.obs.metrics = oteladapters.NewMetricsCollector(providers.MeterProvider.Meter(instrumentationName))
	a.obs.tracing = oteladapters.NewTracingCollector(providers.TracerProvider.Tracer(instrumentationName))

	return nil
}

func (a *app) initStore(ctx context.Context, injected lending.Store) error {
	switch {
	case injected != nil:
		a.store = injected
	case a.cfg.Database.Adapter == config.AdapterMemory:
		a.store = memstore.New()
	}

	if a.store != nil {
		a.migrate = func(context.Context) error { return nil }
		return nil
	}

	storeOptions := []postgresstore.Option{postgresstore.WithLogger(a.obs.sqlLogger)}
	if a.cfg.OTel.Enabled {
		storeOptions = append(storeOptions,
			postgresstore.WithContextualLogger(a.obs.contextualLogger),
			postgresstore.WithMetrics(a.obs.metrics),
			postgresstore.WithTracing(a.obs.tracing),
		)
	}

	var (
		store *postgresstore.Store
		err   error
	)

	switch a.cfg.Database.Adapter {
	case config.AdapterSQLDB:
		db, openErr := config.OpenSQLDB(ctx, a.cfg.Database)
		if openErr != nil {
			return openErr
		}

		a.closers = append(a.closers, db.Close)
		store, err = postgresstore.NewStoreFromSQLDB(db, storeOptions...)

	case config.AdapterSQLX:
		db, openErr := config.OpenSQLX(ctx, a.cfg.Database)
		if openErr != nil {
			return openErr
		}

		a.closers = append(a.closers, db.Close)
		store, err = postgresstore.NewStoreFromSQLX(db, storeOptions...)

	default:
		pool, openErr := config.OpenPGXPool(ctx, a.cfg.Database)
		if openErr != nil {
			return openErr
		}

		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		store, err = postgresstore.NewStoreFromPGXPool(pool, storeOptions...)
	}

	if err != nil {
		return err
	}

	a.store = store
	a.migrate = store.Migrate

	return nil
}

// initHandlers creates the rule handlers with retry metrics and wraps each in an observable wrapper.
func (a *app) initHandlers() error {
	policy := a.cfg.Lending.Policy()

	var err error

	a.borrowHandler, err = observable.NewCommandWrapper[borrow.Command, borrow.Result](
		borrow.NewCommandHandler(
			a.store,
			borrow.WithPolicy(policy),
			borrow.WithRetryOptions(a.retryOptions(borrow.Command{}.CommandType())...),
		),
		commandOptions[borrow.Command, borrow.Result](a.obs)...,
	)
	if err != nil {
		return err
	}

	a.deliverHandler, err = observable.NewCommandWrapper[deliver.Command, deliver.Result](
		deliver.NewCommandHandler(a.store, deliver.WithRetryOptions(a.retryOptions(deliver.Command{}.CommandType())...)),
		commandOptions[deliver.Command, deliver.Result](a.obs)...,
	)
	if err != nil {
		return err
	}

	a.extendHandler, err = observable.NewCommandWrapper[extend.Command, extend.Result](
		extend.NewCommandHandler(
			a.store,
			extend.WithPolicy(policy),
			extend.WithRetryOptions(a.retryOptions(extend.Command{}.CommandType())...),
		),
		commandOptions[extend.Command, extend.Result](a.obs)...,
	)
	if err != nil {
		return err
	}

	a.promoteHandler, err = observable.NewCommandWrapper[promote.Command, promote.Result](
		promote.NewCommandHandler(a.store, promote.WithRetryOptions(a.retryOptions(promote.Command{}.CommandType())...)),
		commandOptions[promote.Command, promote.Result](a.obs)...,
	)
	if err != nil {
		return err
	}

	a.expireHandler, err = observable.NewCommandWrapper[expirequeueposition.Command, expirequeueposition.Result](
		expirequeueposition.NewCommandHandler(
			a.store,
			expirequeueposition.WithRetryOptions(a.retryOptions(expirequeueposition.Command{}.CommandType())...),
		),
		commandOptions[expirequeueposition.Command, expirequeueposition.Result](a.obs)...,
	)

	return err
}

func (a *app) retryOptions(commandType string) []shell.RetryOption {
	if a.obs.metrics == nil {
		return nil
	}

	return []shell.RetryOption{shell.WithMetrics(a.obs.metrics, commandType)}
}

func commandOptions[C shell.Command, R any](obs observability) []observable.CommandOption[C, R] {
	opts := []observable.CommandOption[C, R]{
		observable.WithCommandContextualLogging[C, R](obs.contextualLogger),
	}

	if obs.metrics != nil {
		opts = append(opts, observable.WithCommandMetrics[C, R](obs.metrics))
	}

	if obs.tracing != nil {
		opts = append(opts, observable.WithCommandTracing[C, R](obs.tracing))
	}

	return opts
}

// notifier sends mails through SMTP unless SMTP is disabled or the daemon runs dry, then it only logs.
func (a *app) notifier(dryRun bool) (notify.Notifier, error) {
	if !a.cfg.SMTP.Enabled || dryRun {
		return notify.NewLogNotifier(
			notify.WithLogNotifierContextualLogger(a.obs.contextualLogger),
			notify.WithLogNotifierAddressing(a.cfg.Notify.RecipientDomain, a.cfg.SMTP.SubjectPrefix),
		), nil
	}

	return notify.NewSMTPNotifier(a.cfg.NotifierConfig(), notify.WithSMTPContextualLogger(a.obs.contextualLogger))
}

// scheduler creates the daemon scheduler on top of the wired store and handlers.
func (a *app) scheduler(opts *RootOptions) (*daemon.Scheduler, error) {
	notifier, err := a.notifier(a.cfg.Daemon.DryRun)
	if err != nil {
		return nil, err
	}

	schedulerOptions := []daemon.Option{
		daemon.WithPolicy(a.cfg.Lending.Policy()),
		daemon.WithLeaseTTL(a.cfg.Daemon.LeaseTTL),
		daemon.WithClock(opts.now),
		daemon.WithPromoteHandler(a.promoteHandler),
		daemon.WithExpireHandler(a.expireHandler),
		daemon.WithContextualLogger(a.obs.contextualLogger),
	}

	if a.obs.metrics != nil {
		schedulerOptions = append(schedulerOptions, daemon.WithMetrics(a.obs.metrics))
	}

	if a.obs.tracing != nil {
		schedulerOptions = append(schedulerOptions, daemon.WithTracing(a.obs.tracing))
	}

	return daemon.NewScheduler(a.store, notifier, schedulerOptions...)
}

// Close releases the database connections and flushes telemetry, in reverse order of creation.
func (a *app) Close() error {
	var err error

	for i := len(a.closers) - 1; i >= 0; i-- {
		err = errors.Join(err, a.closers[i]())
	}

	a.closers = nil

	return err
}
