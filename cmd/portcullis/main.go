package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/portcullis/portcullis/internal/adapter/mcp"
	"github.com/portcullis/portcullis/internal/adapter/mssql"
	"github.com/portcullis/portcullis/internal/adapter/policy"
	"github.com/portcullis/portcullis/internal/adapter/postgres"
	"github.com/portcullis/portcullis/internal/audit"
	"github.com/portcullis/portcullis/internal/config"
	"github.com/portcullis/portcullis/internal/core/domain"
	"github.com/portcullis/portcullis/internal/core/port"
	"github.com/portcullis/portcullis/internal/core/service"
	"github.com/portcullis/portcullis/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"golang.org/x/term"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// A .env file is optional; real env vars win over its contents.
	_ = godotenv.Load()

	overrides, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg)

	if cfg.PromptPassword {
		dsn, err := promptPassword(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		cfg.DatabaseURL = dsn
	}

	logger.Info().
		Str("version", version).
		Str("dialect", string(cfg.Dialect)).
		Str("database", redactDSN(cfg.DatabaseURL)).
		Int("max_rows", cfg.MaxRows).
		Dur("query_timeout", cfg.QueryTimeout).
		Str("transport", cfg.Transport).
		Msg("starting portcullis")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracer := telemetry.NoopTracer()
	var inst port.Instrumentation = telemetry.NoopInstruments()
	if cfg.OTelEnabled {
		provider, err := telemetry.Init(ctx, "portcullis", version, cfg.OTelEndpoint)
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("telemetry shutdown")
			}
		}()
		tracer = otel.Tracer("portcullis")
		inst = telemetry.NewInstruments()
		logger.Info().Msg("opentelemetry enabled")
	}

	var backend port.Backend
	switch cfg.Dialect {
	case domain.DialectMSSQL:
		db, err := mssql.Open(ctx, cfg.DatabaseURL, mssql.PoolConfig{
			MaxConns:        int(cfg.PoolMaxConns),
			MinConns:        int(cfg.PoolMinConns),
			MaxConnLifetime: cfg.PoolMaxConnLifetime,
			MaxConnIdleTime: cfg.PoolMaxConnIdle,
		})
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer func() { _ = db.Close() }()
		backend = mssql.NewBackend(db, cfg.Schemas)
	default:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolConfig{
			MaxConns:        cfg.PoolMaxConns,
			MinConns:        cfg.PoolMinConns,
			MaxConnLifetime: cfg.PoolMaxConnLifetime,
			MaxConnIdleTime: cfg.PoolMaxConnIdle,
		})
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()
		backend = postgres.NewBackend(pool, cfg.Schemas)
	}

	logger.Info().Str("dialect", string(backend.Dialect())).Msg("database pool connected")

	var pol *policy.Policy
	if cfg.PolicyFile != "" {
		pol, err = policy.LoadFromFile(cfg.PolicyFile)
		if err != nil {
			return fmt.Errorf("loading policy: %w", err)
		}
		logger.Info().Str("file", cfg.PolicyFile).Msg("policy loaded")
	}

	validator := domain.NewValidator(pol.ExtendRuleset(domain.RulesetFor(cfg.Dialect)), cfg.MaxQueryLength)

	var auditor port.QueryAuditor = audit.NoopAuditor{}
	if cfg.AuditLog != "" {
		fileAuditor, err := audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		auditor = fileAuditor
		logger.Info().Str("file", cfg.AuditLog).Msg("audit log enabled")
	}
	defer func() { _ = auditor.Close() }()

	gate := service.NewQueryService(validator, backend, auditor, logger,
		pol.Masks(), cfg.MaxRows, cfg.QueryTimeout, tracer, inst)
	catalog := service.NewCatalogService(backend, logger, pol.Masks(), pol.Annotations(), tracer)

	mcpServer := mcp.NewServer(version, catalog, gate, logger, tracer, inst)

	if cfg.Transport == "http" {
		return serveHTTP(ctx, cfg, mcpServer, logger)
	}
	return serveStdio(ctx, mcpServer, logger)
}

// serveStdio runs the MCP server over stdin/stdout until the context ends.
func serveStdio(ctx context.Context, mcpServer *mcpserver.MCPServer, logger zerolog.Logger) error {
	stdioServer := mcpserver.NewStdioServer(mcpServer)

	logger.Info().Msg("serving MCP over stdio")
	if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}

	logger.Info().Msg("shutdown complete")
	return nil
}

// serveHTTP mounts the streamable MCP handler at /mcp behind bearer auth,
// exposes /health unauthenticated, and shuts down gracefully on signal.
func serveHTTP(ctx context.Context, cfg *config.Config, mcpServer *mcpserver.MCPServer, logger zerolog.Logger) error {
	streamable := mcpserver.NewStreamableHTTPServer(mcpServer,
		mcpserver.WithEndpointPath("/mcp"),
		mcpserver.WithStateLess(true),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/mcp", bearerAuthMiddleware(streamable, cfg.HTTPBearerToken))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           recoveryMiddleware(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("serving MCP over HTTP")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	logger.Info().Msg("shutdown complete")
	return nil
}

// newLogger builds the process logger. Logs go to stderr; stdout is
// reserved for the MCP stdio transport.
func newLogger(cfg *config.Config) zerolog.Logger {
	var out io.Writer = os.Stderr
	if cfg.LogFormat == "text" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(cfg.LogLevel).With().Timestamp().Logger()
}

// parseFlags maps CLI flags onto config overrides. Only flags that were
// actually set survive into the result, so env values stay in charge of
// everything else.
func parseFlags(args []string) (config.Overrides, error) {
	fs := flag.NewFlagSet("portcullis", flag.ContinueOnError)

	databaseURL := fs.String("database-url", "", "database connection string (overrides DATABASE_URL)")
	dialect := fs.String("dialect", "", "sql dialect: postgres or mssql (overrides DIALECT)")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	logFormat := fs.String("log-format", "", "log format: json or text (overrides LOG_FORMAT)")
	maxRows := fs.Int("max-rows", 0, "row cap applied to query results (overrides MAX_ROWS)")
	maxQueryLength := fs.Int("max-query-length", 0, "maximum query text length (overrides MAX_QUERY_LENGTH)")
	queryTimeout := fs.Duration("query-timeout", 0, "per-query timeout (overrides QUERY_TIMEOUT)")
	schemas := fs.String("schemas", "", "comma-separated schema allowlist (overrides SCHEMAS)")
	policyFile := fs.String("policy-file", "", "path to policy YAML (overrides POLICY_FILE)")
	auditLog := fs.String("audit-log", "", "path to NDJSON audit log (overrides AUDIT_LOG)")
	transport := fs.String("transport", "", `transport: "stdio" or "http" (overrides TRANSPORT)`)
	httpAddr := fs.String("http-addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	httpBearerToken := fs.String("http-bearer-token", "", "bearer token for HTTP transport (overrides HTTP_BEARER_TOKEN)")
	otelEnabled := fs.Bool("otel", false, "enable OpenTelemetry tracing and metrics")
	otelEndpoint := fs.String("otel-endpoint", "", "OTLP gRPC endpoint (overrides OTEL_ENDPOINT)")
	promptPassword := fs.Bool("prompt-password", false, "prompt for the database password on the terminal")
	poolMaxConns := fs.Int("pool-max-conns", 0, "maximum pool connections (overrides POOL_MAX_CONNS)")
	poolMinConns := fs.Int("pool-min-conns", 0, "minimum pool connections (overrides POOL_MIN_CONNS)")
	poolMaxConnLifetime := fs.Duration("pool-max-conn-lifetime", 0, "maximum connection lifetime (overrides POOL_MAX_CONN_LIFETIME)")
	poolMaxConnIdle := fs.Duration("pool-max-conn-idle", 0, "maximum connection idle time (overrides POOL_MAX_CONN_IDLE)")

	if err := fs.Parse(args); err != nil {
		return config.Overrides{}, err
	}

	var o config.Overrides
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "database-url":
			o.DatabaseURL = databaseURL
		case "dialect":
			o.Dialect = dialect
		case "log-level":
			o.LogLevel = logLevel
		case "log-format":
			o.LogFormat = logFormat
		case "max-rows":
			o.MaxRows = maxRows
		case "max-query-length":
			o.MaxQueryLength = maxQueryLength
		case "query-timeout":
			o.QueryTimeout = queryTimeout
		case "schemas":
			o.Schemas = schemas
		case "policy-file":
			o.PolicyFile = policyFile
		case "audit-log":
			o.AuditLog = auditLog
		case "transport":
			o.Transport = transport
		case "http-addr":
			o.HTTPAddr = httpAddr
		case "http-bearer-token":
			o.HTTPBearerToken = httpBearerToken
		case "otel-endpoint":
			o.OTelEndpoint = otelEndpoint
		case "pool-max-conns":
			v := int32(*poolMaxConns)
			o.PoolMaxConns = &v
		case "pool-min-conns":
			v := int32(*poolMinConns)
			o.PoolMinConns = &v
		case "pool-max-conn-lifetime":
			o.PoolMaxConnLifetime = poolMaxConnLifetime
		case "pool-max-conn-idle":
			o.PoolMaxConnIdle = poolMaxConnIdle
		}
	})
	o.OTelEnabled = *otelEnabled
	o.PromptPassword = *promptPassword

	return o, nil
}

// promptPassword reads a password from the terminal and injects it into the
// DSN. Refuses to prompt when stdin is not a terminal, which is the case
// when an MCP client launched the process over stdio.
func promptPassword(dsn string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("--prompt-password requires an interactive terminal")
	}

	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	return injectPassword(dsn, string(pw))
}

// injectPassword rewrites a URL-style DSN with the given password.
func injectPassword(dsn, password string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("--prompt-password requires a URL-style DSN")
	}
	username := ""
	if u.User != nil {
		username = u.User.Username()
	}
	u.User = url.UserPassword(username, password)
	return u.String(), nil
}

// redactDSN hides the password component of a DSN for logging.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}
