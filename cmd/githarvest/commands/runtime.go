// Package commands implements the githarvest CLI commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/githarvest/pkg/config"
	"github.com/Sumatoshi-tech/githarvest/pkg/observability"
	"github.com/Sumatoshi-tech/githarvest/pkg/version"
)

const metricsReadHeaderTimeout = 5 * time.Second

// runtimeEnv is what every command sets up before doing work.
type runtimeEnv struct {
	cfg       *config.Config
	providers observability.Providers
	logger    *slog.Logger
	stopHTTP  func(context.Context) error
}

// setup loads the configuration, lets override adjust it, then starts
// telemetry. The caller must call close.
func setup(cmd *cobra.Command, configPath string, override func(*config.Config)) (*runtimeEnv, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	if override != nil {
		override(cfg)

		err = cfg.Validate()
		if err != nil {
			return nil, fmt.Errorf("invalid flags: %w", err)
		}
	}

	obsCfg, err := observabilityConfig(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	providers, err := observability.Init(cmd.Context(), obsCfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	env := &runtimeEnv{cfg: cfg, providers: providers, logger: providers.Logger}

	if cfg.Telemetry.MetricsAddr != "" && providers.MetricsHandler != nil {
		env.stopHTTP, err = serveMetrics(cfg.Telemetry.MetricsAddr, providers.MetricsHandler, env.logger)
		if err != nil {
			return nil, errors.Join(err, providers.Shutdown(context.Background()))
		}
	}

	return env, nil
}

// close stops the metrics endpoint and flushes telemetry.
func (e *runtimeEnv) close() error {
	ctx := context.Background()

	var errs []error

	if e.stopHTTP != nil {
		errs = append(errs, e.stopHTTP(ctx))
	}

	errs = append(errs, e.providers.Shutdown(ctx))

	return errors.Join(errs...)
}

func observabilityConfig(cfg *config.Config, logOut io.Writer) (observability.Config, error) {
	level, err := cfg.Logging.SlogLevel()
	if err != nil {
		return observability.Config{}, err
	}

	obs := observability.DefaultConfig()
	obs.ServiceVersion = version.Get().Version
	obs.Environment = cfg.Telemetry.Environment
	obs.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obs.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Telemetry.OTLPHeaders)
	obs.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obs.SampleRatio = cfg.Telemetry.SampleRatio
	obs.Prometheus = cfg.Telemetry.MetricsAddr != ""
	obs.LogLevel = level
	obs.LogJSON = cfg.Logging.JSON
	obs.LogOutput = logOut

	return obs, nil
}

// serveMetrics exposes handler on addr under /metrics.
func serveMetrics(addr string, handler http.Handler, logger *slog.Logger) (func(context.Context) error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: metricsReadHeaderTimeout}

	go func() {
		serveErr := srv.Serve(ln)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", serveErr)
		}
	}()

	logger.Info("serving metrics", "addr", ln.Addr().String())

	return srv.Shutdown, nil
}
