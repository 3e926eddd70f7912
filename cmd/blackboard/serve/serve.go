// Package servecmder provides the serve command, which runs the blackboard
// API and MCP server over a registry of stores.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/blackboard/api"
	"github.com/papercomputeco/blackboard/api/mcp"
	"github.com/papercomputeco/blackboard/cmd/blackboard/storeflags"
	"github.com/papercomputeco/blackboard/pkg/blackboard"
	"github.com/papercomputeco/blackboard/pkg/config"
	"github.com/papercomputeco/blackboard/pkg/epoch"
	"github.com/papercomputeco/blackboard/pkg/eventstream"
	kafkapub "github.com/papercomputeco/blackboard/pkg/eventstream/kafka"
	"github.com/papercomputeco/blackboard/pkg/eventstream/nop"
	redispub "github.com/papercomputeco/blackboard/pkg/eventstream/redis"
	"github.com/papercomputeco/blackboard/pkg/logger"
	"github.com/papercomputeco/blackboard/pkg/metrics"
	"github.com/papercomputeco/blackboard/pkg/policy"
	"github.com/papercomputeco/blackboard/pkg/storage"
	"github.com/papercomputeco/blackboard/pkg/telemetry"
	"github.com/papercomputeco/blackboard/pkg/utils"
)

type serveCommander struct {
	jsonLogs bool
	debug    bool
	logger   *slog.Logger
}

// serveValues holds flag targets. The effective values are read back
// through viper, as storeflags does for the store flags.
type serveValues struct {
	listen        string
	events        string
	kafkaBrokers  string
	redisAddr     string
	epochSchedule string
	otlpEndpoint  string
	otlpInsecure  bool
}

const serveLongDesc string = `Run the blackboard API server.

The server exposes the HTTP API under /v1, Prometheus metrics under
/metrics and an MCP endpoint under /mcp. Stores are opened lazily per crew
in separate mode, or once in shared mode.

Store settings come from flags, BLACKBOARD_* environment variables and
.blackboard/config.toml, in that order of precedence.

Examples:
  blackboard serve
  blackboard serve --flavor durable --sqlite ./board.db
  blackboard serve --events kafka --kafka-brokers localhost:9092
  blackboard serve --epoch-schedule "@every 10s" --rules rules.toml`

const serveShortDesc string = "Run the blackboard server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}

			cfg, err := storeflags.Load(cmd, config.ServeFlags)
			if err != nil {
				return err
			}
			return cmder.run(cmd.Context(), cfg)
		},
	}

	storeflags.Add(cmd)
	v := &serveValues{}
	fs := config.ServeFlags
	config.AddStringFlag(cmd, fs, config.FlagAPIListen, &v.listen)
	config.AddStringFlag(cmd, fs, config.FlagEvents, &v.events)
	config.AddStringFlag(cmd, fs, config.FlagKafkaBrokers, &v.kafkaBrokers)
	config.AddStringFlag(cmd, fs, config.FlagRedisAddr, &v.redisAddr)
	config.AddStringFlag(cmd, fs, config.FlagEpochSchedule, &v.epochSchedule)
	config.AddStringFlag(cmd, fs, config.FlagOTLPEndpoint, &v.otlpEndpoint)
	config.AddBoolFlag(cmd, fs, config.FlagOTLPInsecure, &v.otlpInsecure)
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json-logs", false, "Write logs as JSON")

	return cmd
}

func (c *serveCommander) run(ctx context.Context, cfg *config.Config) error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
		logger.WithJSON(c.jsonLogs),
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	boardCfg, err := cfg.Blackboard()
	if err != nil {
		return err
	}

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry.OTLPEndpoint, "blackboard", utils.Version, cfg.Telemetry.OTLPInsecure)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			c.logger.Error("failed to flush traces", "error", err)
		}
	}()
	if cfg.Telemetry.OTLPEndpoint != "" {
		c.logger.Info("exporting traces", "endpoint", cfg.Telemetry.OTLPEndpoint)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	publisher, err := c.newPublisher(ctx, cfg.Events)
	if err != nil {
		return err
	}
	defer publisher.Close()

	opts := []storage.Option{
		storage.WithLogger(c.logger),
		storage.WithPublisher(publisher),
		storage.WithMetrics(m),
	}

	if cfg.Policy.RulesPath != "" {
		watcher, err := policy.NewWatcher(cfg.Policy.RulesPath, c.logger)
		if err != nil {
			return fmt.Errorf("loading commit rules: %w", err)
		}
		defer watcher.Close()

		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Error("rules watcher stopped", "error", err)
			}
		}()

		opts = append(opts, storage.WithAuthorizer(watcher))
		c.logger.Info("commit rules loaded", "path", cfg.Policy.RulesPath)
	}

	registry, err := blackboard.NewRegistry(boardCfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := registry.Close(); err != nil {
			c.logger.Error("failed to close stores", "error", err)
		}
	}()

	// Open the shared store up front so a durable journal is restored, and
	// any error surfaced, before the server starts.
	if registry.Mode() == blackboard.ModeShared {
		if _, err := registry.Store(ctx, blackboard.DefaultCrew); err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
	}

	c.logger.Info("using blackboard store",
		"flavor", boardCfg.Flavor,
		"mode", boardCfg.Mode,
	)

	if cfg.Epoch.Schedule != "" {
		scheduler, err := epoch.NewScheduler(cfg.Epoch.Schedule, c.logger)
		if err != nil {
			return err
		}
		if err := scheduler.Add("registry", registry); err != nil {
			return err
		}
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Stores: registry,
		Logger: c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	apiServer := api.NewServer(api.Config{
		ListenAddr: cfg.API.Listen,
		Gatherer:   reg,
		MCP:        mcpServer.Handler(),
	}, registry, c.logger)

	errChan := make(chan error, 1)
	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		c.logger.Info("received signal, shutting down")
	}

	if err := apiServer.Shutdown(); err != nil {
		c.logger.Error("failed to shut down API server", "error", err)
	}
	return nil
}

func (c *serveCommander) newPublisher(ctx context.Context, cfg config.EventsConfig) (eventstream.Publisher, error) {
	switch cfg.Provider {
	case config.EventsKafka:
		p, err := kafkapub.NewPublisher(kafkapub.Config{
			Brokers: cfg.Brokers,
			Topic:   cfg.Topic,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		c.logger.Info("publishing events to kafka", "brokers", cfg.Brokers, "topic", cfg.Topic)
		return p, nil

	case config.EventsRedis:
		p := redispub.NewPublisher(&goredis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := p.Ping(pingCtx); err != nil {
			p.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		c.logger.Info("publishing events to redis", "addr", cfg.RedisAddr)
		return p, nil

	case config.EventsNone, "":
		return nop.NewPublisher(), nil

	default:
		return nil, fmt.Errorf("unknown events provider %q", cfg.Provider)
	}
}
