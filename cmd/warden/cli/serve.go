package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/server"
	"github.com/wardenhq/warden/internal/service"
	"github.com/wardenhq/warden/internal/stream"
	"github.com/wardenhq/warden/internal/telemetry"
	"github.com/wardenhq/warden/internal/webhook"
)

const banner = `
__      ___   ___ ___  ___ _  _
\ \    / /_\ | _ \   \| __| \| |
 \ \/\/ / _ \|   / |) | _|| .' |
  \_/\_/_/ \_\_|_\___/|___|_|\_|
`

func newServeCmd() *cobra.Command {
	var (
		port   int
		host   string
		dev    bool
		detach bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Warden gateway",
		Long:  "Start the HTTP gateway that authenticates, authorizes, and forwards every request.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if detach {
				return runDetached()
			}
			return runServe(host, port, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging, memory idempotency store)")
	cmd.Flags().BoolVarP(&detach, "detach", "d", false, "Run the server in the background")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

// runDetached re-executes "warden serve" in a new session with output
// redirected to the log file, then records the child PID for status/stop.
func runDetached() error {
	args := make([]string, 0, len(os.Args))
	for _, a := range os.Args[1:] {
		if a == "-d" || a == "--detach" {
			continue
		}
		args = append(args, a)
	}

	if err := os.MkdirAll(resolveDataDir(), 0755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(logFilePath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(os.Args[0], args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setSysProcAttr(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start background server: %w", err)
	}
	if err := writePID(child.Process.Pid); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}

	fmt.Printf("Warden server started in background (PID %d)\n", child.Process.Pid)
	fmt.Printf("  Logs: %s\n", logFilePath())
	fmt.Printf("  Stop: warden stop\n")
	return nil
}

func runServe(host string, port int, dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	logLevel := slog.LevelInfo
	if dev {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	// 1. SQLite state store (agents, triggers, workflows, delivery counters)
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("init state store: %w", err)
	}
	defer store.Close()
	logger.Info("state store initialized", "path", resolveDataDir())

	// 2. Typed config file. ${VAR} references in warden.yaml are expanded,
	// which is how webhook secrets should be injected.
	fileCfg := config.DefaultYAMLConfig()
	if path := viper.ConfigFileUsed(); path != "" {
		fileCfg, err = config.LoadYAMLConfig(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}

	// 3. Token service
	jwtSecret := viper.GetString("auth.jwt_secret")
	if jwtSecret == "" {
		jwtSecret = fileCfg.Auth.JWTSecret
	}
	if jwtSecret == "" {
		if !dev {
			return fmt.Errorf("auth.jwt_secret is required (set WARDEN_AUTH_JWT_SECRET or warden.yaml)")
		}
		jwtSecret = "warden-dev-secret-change-me"
		logger.Warn("using built-in dev JWT secret; do not use in production")
	}
	authSvc := service.NewAuthService(jwtSecret)

	// 4. Webhook verifier
	secrets := fileCfg.Webhooks.Secrets
	tolerance := time.Duration(fileCfg.Webhooks.ToleranceSeconds) * time.Second
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	verifier := webhook.NewVerifier(secrets, tolerance)
	for _, provider := range []string{"shopify", "stripe", "printful"} {
		if secrets[provider] == "" {
			logger.Warn("no webhook secret configured; deliveries will be rejected", "provider", provider)
		}
	}

	// 5. Idempotency store
	dedup, cleanup, err := buildIdempotencyStore(cmdCtx(), logger, fileCfg.Webhooks.Idempotency, dev)
	if err != nil {
		return fmt.Errorf("init idempotency store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	// 6. Event hub for WebSocket subscribers
	events := stream.NewHub()

	// 7. Telemetry
	tracker := telemetry.New(cmdCtx(), store, func() telemetry.Properties {
		return gatherTelemetry(store)
	})
	if tracker != nil {
		telemetry.PrintNotice()
		tracker.Start()
		defer tracker.Shutdown()
	}

	// 8. Build and start the HTTP server
	srvCfg := server.DefaultConfig()
	srvCfg.Host = host
	srvCfg.Port = port
	if origins := fileCfg.Server.CORS.Origins; len(origins) > 0 {
		srvCfg.CORSOrigins = origins
	}

	srv := server.New(srvCfg, store, authSvc, verifier, dedup, events, logger)

	fmt.Printf("→ Warden %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", host, port)
	fmt.Printf("→ Health:   http://%s:%d/health\n", host, port)
	fmt.Printf("→ Webhooks: /webhooks/{shopify,stripe,printful}\n")
	fmt.Printf("→ Events:   ws://%s:%d/ws?token=...\n", host, port)
	fmt.Println()

	return srv.ListenAndServe()
}

// buildIdempotencyStore selects the delivery-dedup backend from config:
// redis (default), postgres, or memory. Memory only deduplicates within
// one process and is reserved for --dev.
func buildIdempotencyStore(ctx context.Context, logger *slog.Logger, cfg config.IdempotencyConfig, dev bool) (webhook.IdempotencyStore, func(), error) {
	ttl := 72 * time.Hour
	if cfg.RetentionTTL != "" {
		parsed, err := time.ParseDuration(cfg.RetentionTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid retention_ttl %q: %w", cfg.RetentionTTL, err)
		}
		ttl = parsed
	}

	switch strings.ToLower(cfg.Backend) {
	case "", "redis":
		addr := cfg.RedisAddr
		if addr == "" {
			addr = "localhost:6379"
		}
		client, err := webhook.NewRedisClient(ctx, addr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			if dev {
				logger.Warn("redis unreachable, falling back to memory idempotency store", "error", err)
				return webhook.NewMemoryStore(ttl), nil, nil
			}
			return nil, nil, err
		}
		logger.Info("idempotency store ready", "backend", "redis", "addr", addr)
		return webhook.NewRedisStore(client, ttl), func() { client.Close() }, nil

	case "postgres":
		store, err := webhook.NewPostgresStore(ctx, cfg.PostgresDSN, ttl)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("idempotency store ready", "backend", "postgres")
		return store, store.Close, nil

	case "memory":
		if !dev {
			logger.Warn("memory idempotency store does not deduplicate across instances or restarts")
		}
		return webhook.NewMemoryStore(ttl), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown idempotency backend %q", cfg.Backend)
	}
}

func gatherTelemetry(store *config.Store) telemetry.Properties {
	ctx := cmdCtx()
	props := telemetry.Properties{
		Version:   versionString(),
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	if agents, err := store.ListAgents(ctx); err == nil {
		props.Agents = len(agents)
	}
	if triggers, err := store.ListTriggers(ctx); err == nil {
		props.Triggers = len(triggers)
	}
	if workflows, err := store.ListWorkflows(ctx); err == nil {
		props.Workflows = len(workflows)
	}
	if statuses, err := store.ListProviderStatus(ctx); err == nil {
		for _, s := range statuses {
			props.Accepted += s.Accepted
			props.Duplicates += s.Duplicates
			props.Rejected += s.Rejected
		}
	}
	return props
}

// cmdCtx returns a background context for CLI initialization.
func cmdCtx() context.Context {
	return context.Background()
}
