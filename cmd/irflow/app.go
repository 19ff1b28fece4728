package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ormasoftchile/irflow/pkg/config"
	"github.com/ormasoftchile/irflow/pkg/connectors"
	"github.com/ormasoftchile/irflow/pkg/dispatch"
	"github.com/ormasoftchile/irflow/pkg/engine"
	"github.com/ormasoftchile/irflow/pkg/governance"
	"github.com/ormasoftchile/irflow/pkg/logging"
	"github.com/ormasoftchile/irflow/pkg/metrics"
	"github.com/ormasoftchile/irflow/pkg/trace"
)

// signingKeyIDEnv labels the key used to seal the trace on shutdown.
const signingKeyIDEnv = "IRFLOW_TRACE_SIGNING_KEY_ID"

// app is one fully wired engine with its logger, trace and metrics server.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	trace   *trace.Writer
	engine  *engine.Engine
	metrics *http.Server
}

// loadConfig reads --config and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if playbooksDir != "" {
		cfg.Playbooks = playbooksDir
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if tracePath != "" {
		cfg.Trace = tracePath
	}
	return cfg, nil
}

// newApp builds the engine described by cfg. Vendor connectors are
// connected before the engine starts.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := logging.New(cfg.Log.Options())
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: logger}

	if cfg.Trace != "" {
		tw, err := trace.NewFileWriter(cfg.Trace)
		if err != nil {
			return nil, err
		}
		a.trace = tw
	}

	capability, err := buildCapability(ctx, cfg, logger)
	if err != nil {
		a.closeTrace()
		return nil, err
	}
	redactor, err := governance.NewRedactor(cfg.Governance.Redaction)
	if err != nil {
		a.closeTrace()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	a.engine = engine.New(engine.Config{
		Logger:       logger,
		Trace:        a.trace,
		Metrics:      metrics.New(reg),
		Capability:   capability,
		AutoAdvance:  cfg.AutoAdvance,
		Policy:       governance.Policy{RequireApprovals: cfg.RequireApprovals},
		ActionPolicy: cfg.Governance.Actions,
		Redactor:     redactor,
	})

	if cfg.Playbooks != "" {
		loaded, err := a.engine.LoadPlaybooks(cfg.Playbooks)
		if err != nil {
			_ = a.Close(context.Background())
			return nil, err
		}
		logger.Info("playbooks loaded", zap.String("dir", cfg.Playbooks), zap.Strings("types", loaded))
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		a.metrics = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
		logger.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
	}
	return a, nil
}

// buildCapability wires the configured EDR and firewall vendors. Network
// scanning and directory accounts always use the simulated estate.
func buildCapability(ctx context.Context, cfg *config.Config, logger *zap.Logger) (dispatch.Capability, error) {
	sim := connectors.NewSimulated()
	opts := []connectors.Option{connectors.WithLogger(logger)}

	edr, err := connectors.NewEDR(cfg.Connectors.EDR, sim, opts...)
	if err != nil {
		return nil, err
	}
	fw, err := connectors.NewFirewall(cfg.Connectors.Firewall, sim, opts...)
	if err != nil {
		return nil, err
	}
	if err := edr.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect edr: %w", err)
	}
	if err := fw.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect firewall: %w", err)
	}

	toolkit := &dispatch.Toolkit{EDR: edr, Firewall: fw, Scanner: sim, Directory: sim}
	return dispatch.Guard(toolkit, cfg.Breaker, logger), nil
}

// Close stops the engine, seals and closes the trace, and stops the
// metrics server.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if err := a.engine.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.metrics != nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.trace != nil {
		if err := a.trace.Seal(os.Getenv(trace.SigningKeyEnv), os.Getenv(signingKeyIDEnv)); err != nil {
			errs = append(errs, err)
		}
	}
	a.closeTrace()
	_ = a.log.Sync()
	return errors.Join(errs...)
}

func (a *app) closeTrace() {
	if a.trace != nil {
		_ = a.trace.Close()
		a.trace = nil
	}
}

// withApp loads the configuration, builds the app, runs fn and shuts the
// app down.
func withApp(ctx context.Context, fn func(*app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	runErr := fn(a)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Join(runErr, a.Close(shutdownCtx))
}
