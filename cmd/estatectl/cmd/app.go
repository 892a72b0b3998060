package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pilab-dev/estate-auth/client"
	"github.com/pilab-dev/estate-auth/config"
	"github.com/pilab-dev/estate-auth/domain"
	"github.com/pilab-dev/estate-auth/internal/audit"
	"github.com/pilab-dev/estate-auth/internal/federation"
	"github.com/pilab-dev/estate-auth/internal/gate"
	"github.com/pilab-dev/estate-auth/internal/metrics"
	"github.com/pilab-dev/estate-auth/internal/notify"
	"github.com/pilab-dev/estate-auth/internal/storage"
	"github.com/pilab-dev/estate-auth/log"
	"github.com/pilab-dev/estate-auth/session"
	"github.com/pilab-dev/estate-auth/tracing"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// stateTTL is the default lifetime of generic items in the state db.
const stateTTL = 24 * time.Hour

// app holds the wired dependencies of one CLI invocation.
type app struct {
	cfg      *config.ClientConfig
	logger   log.Logger
	out      io.Writer
	registry *prometheus.Registry

	state   *storage.BBoltStore
	jar     *storage.PersistentJar
	store   *session.Store
	google  *federation.LoopbackProvider
	bridge  *federation.Bridge
	watcher *federation.Subscription

	tracerProvider *sdktrace.TracerProvider
	traceOut       io.Closer
	auditOut       io.Closer
}

func newApp(ctx context.Context, cfg *config.ClientConfig, out, errOut io.Writer) (*app, error) {
	logger := log.NewZerologAdapterWithWriter(errOut, log.ParseLevel(cfg.LogLevel), cfg.LogPretty).
		With(map[string]interface{}{"profile": cfg.Profile})

	a := &app{cfg: cfg, logger: logger, out: out, registry: prometheus.NewRegistry()}
	ok := false
	defer func() {
		if !ok {
			a.close(ctx)
		}
	}()

	if err := a.initTracing(errOut); err != nil {
		return nil, err
	}

	m, err := metrics.NewMetrics(a.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	a.state, err = storage.NewBBoltStore(os.ExpandEnv(cfg.StateDBPath), stateTTL, logger)
	if err != nil {
		return nil, err
	}
	if _, err := a.state.PurgeExpired(ctx); err != nil {
		logger.Warn(ctx, "failed to purge expired state", map[string]interface{}{"error": err.Error()})
	}

	a.jar, err = storage.NewPersistentJar(a.state, cfg.Profile, logger)
	if err != nil {
		return nil, err
	}

	api, err := client.New(client.Config{
		BaseURL: cfg.APIBaseURL,
		Jar:     a.jar,
		Timeout: cfg.RequestTimeout,
		Logger:  logger,
		Metrics: m,
	})
	if err != nil {
		return nil, err
	}

	// Each invocation is a new process, so accepted attempts live in the state db.
	g := gate.New(cfg.LoginCooldown,
		gate.WithWindow(domain.OperationRegister, cfg.RegisterCooldown),
		gate.WithStore(storage.NewAttemptStore(a.state, cfg.Profile, logger)),
	)
	relay := notify.NewRelay(
		notify.MultiSink{notify.NewWriterSink(out), notify.NewLogSink(logger)},
		cfg.NotifyCooldown,
		notify.WithMetrics(m),
	)

	opts := []session.Option{session.WithLogger(logger), session.WithMetrics(m)}
	if cfg.AuditLog != "" {
		f, err := os.OpenFile(os.ExpandEnv(cfg.AuditLog), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		a.auditOut = f
		opts = append(opts, session.WithAudit(audit.New(f)))
	}
	if cfg.GoogleEnabled() {
		a.google, err = federation.NewGoogleProvider(&domain.IdentityProvider{
			Name:         "google",
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		},
			federation.WithBrowser(a.openAuthURL),
			federation.WithPendingStore(storage.NewPendingStore(a.state, cfg.Profile)),
			federation.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to configure Google sign-in: %w", err)
		}
		a.bridge = federation.NewBridge(a.google, logger)
		a.watcher = a.bridge.OnStateChanged(func(u *federation.ProviderUser) {
			if u == nil {
				logger.Debug(ctx, "provider session: signed out")
				return
			}
			logger.Debug(ctx, "provider session: signed in", map[string]interface{}{"email": u.Email})
		})
		opts = append(opts, session.WithFederatedProvider(a.bridge))
	}

	a.store = session.NewStore(api, g, relay, opts...)
	ok = true
	return a, nil
}

func (a *app) initTracing(errOut io.Writer) error {
	var w io.Writer
	switch a.cfg.TraceOutput {
	case "":
	case "stderr":
		w = errOut
	default:
		f, err := os.OpenFile(a.cfg.TraceOutput, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open trace output: %w", err)
		}
		a.traceOut = f
		w = f
	}

	tp, err := tracing.InitTracerProvider(a.cfg.OtelServiceName, w)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer provider: %w", err)
	}
	a.tracerProvider = tp
	return nil
}

// openAuthURL always prints the URL so that sign-in works without a desktop.
func (a *app) openAuthURL(authURL string) error {
	fmt.Fprintf(a.out, "Opening your browser to sign in. If it does not open, visit:\n\n  %s\n\n", authURL)
	return openBrowser(authURL)
}

func (a *app) close(ctx context.Context) {
	if a.watcher != nil {
		a.watcher.Unsubscribe()
	}
	if a.bridge != nil {
		a.bridge.Close()
	}
	a.logMetrics(ctx)
	if a.state != nil {
		if err := a.state.Close(); err != nil {
			a.logger.Warn(ctx, "failed to close state db", map[string]interface{}{"error": err.Error()})
		}
	}
	if a.tracerProvider != nil {
		// Spans are flushed even if the command context was cancelled.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracerProvider.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn(ctx, "error shutting down tracer provider", map[string]interface{}{"error": err.Error()})
		}
	}
	if a.traceOut != nil {
		_ = a.traceOut.Close()
	}
	if a.auditOut != nil {
		_ = a.auditOut.Close()
	}
}

// logMetrics dumps the invocation's counters at debug level.
func (a *app) logMetrics(ctx context.Context) {
	families, err := a.registry.Gather()
	if err != nil {
		return
	}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			fields := map[string]interface{}{"metric": mf.GetName(), "value": metric.GetCounter().GetValue()}
			for _, lp := range metric.GetLabel() {
				fields[lp.GetName()] = lp.GetValue()
			}
			a.logger.Debug(ctx, "metric", fields)
		}
	}
}
