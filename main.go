// Command busjam starts the bus jam game server.
//
// Commands:
//  1. "serve" (default) runs the HTTP server exposing the REST API, WebSocket
//     updates and an /mcp HTTP endpoint
//  2. "mcp" runs an MCP stdio server, reusing a local API server when one is
//     running and starting an internal one otherwise
//  3. "validate" checks level files
//  4. "version" prints version information
//
// Settings come from busjam.{yaml,json}, .env and BUSJAM_* variables; flags
// override them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/mcp-training/busjam/api"
	"github.com/wricardo/mcp-training/busjam/game/config"
	"github.com/wricardo/mcp-training/busjam/game/progress"
	"github.com/wricardo/mcp-training/busjam/game/service"
	"github.com/wricardo/mcp-training/busjam/game/session"
	"github.com/wricardo/mcp-training/busjam/internal/logging"
	"github.com/wricardo/mcp-training/busjam/internal/settings"
	"github.com/wricardo/mcp-training/busjam/internal/telemetry"
	"github.com/wricardo/mcp-training/busjam/transport/mcp"
	"github.com/wricardo/mcp-training/busjam/transport/websocket"
	"github.com/wricardo/mcp-training/busjam/validate"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Bus Jam Server"
)

const (
	cleanupEvery = time.Hour
	clockEvery   = time.Second
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "busjam",
		Usage:   AppName,
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "settings", Usage: "settings file (default: busjam.{yaml,json} in the working directory)", Sources: cli.EnvVars("BUSJAM_SETTINGS")},
			&cli.StringFlag{Name: "env-file", Usage: "dotenv file loaded before settings", Value: ".env"},
			&cli.StringFlag{Name: "host", Usage: "HTTP server host"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "HTTP server port"},
			&cli.StringFlag{Name: "levels-dir", Usage: "directory containing level_<n>.json files"},
			&cli.StringFlag{Name: "default-level", Usage: "level used when a session is created without one"},
			&cli.StringFlag{Name: "log-level", Usage: "trace, debug, info, warn or error"},
			&cli.BoolFlag{Name: "debug", Usage: "shorthand for --log-level debug"},
			&cli.BoolFlag{Name: "no-clock", Usage: "do not advance level clocks in the background"},
			&cli.BoolFlag{Name: "metrics", Usage: "export OpenTelemetry metrics as JSON (to metrics.file or stderr)"},
			&cli.BoolFlag{Name: "ngrok", Usage: "enable ngrok tunnel"},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "ngrok auth token (or NGROK_AUTHTOKEN)"},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "custom ngrok domain (optional)"},
		},
		Action: serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server with REST API, WebSocket and MCP endpoint",
				Action: serveAction,
			},
			{
				Name:    "mcp",
				Aliases: []string{"stdio-mcp", "mcp-stdio"},
				Usage:   "run an MCP stdio server",
				Action:  mcpAction,
			},
			{
				Name:      "validate",
				Usage:     "validate level files",
				ArgsUsage: "[file.json ...]",
				Action:    validateAction,
			},
			{
				Name:  "version",
				Usage: "print version information",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Fprintf(cmd.Root().Writer, "%s v%s\n", AppName, Version)
					return nil
				},
			},
		},
	}
}

// loadSettings resolves settings and applies flag overrides.
func loadSettings(cmd *cli.Command) (*settings.Settings, error) {
	s, _, err := settings.Load(settings.Options{
		File:    cmd.String("settings"),
		EnvFile: cmd.String("env-file"),
	})
	if err != nil {
		return nil, err
	}

	if cmd.IsSet("host") {
		s.Server.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		s.Server.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("levels-dir") {
		s.Levels.Dir = cmd.String("levels-dir")
	}
	if cmd.IsSet("default-level") {
		s.Levels.Default = cmd.String("default-level")
	}
	if cmd.IsSet("log-level") {
		s.Log.Level = cmd.String("log-level")
	}
	if cmd.Bool("debug") {
		s.Log.Level = "debug"
	}
	if cmd.Bool("no-clock") {
		s.Clock.Enabled = false
	}
	if cmd.Bool("metrics") {
		s.Metrics.Enabled = true
	}
	if cmd.Bool("ngrok") {
		s.Ngrok.Enabled = true
	}
	if cmd.IsSet("ngrok-auth") {
		s.Ngrok.AuthToken = cmd.String("ngrok-auth")
	}
	if cmd.IsSet("ngrok-domain") {
		s.Ngrok.Domain = cmd.String("ngrok-domain")
	}
	return s, nil
}

// startMetrics installs the metric exporter before any instrument is created.
// The returned func flushes and stops it.
func startMetrics(s *settings.Settings, logger zerolog.Logger) (func(), error) {
	provider, err := telemetry.NewProvider(telemetry.ProviderConfig{
		Enabled:     s.Metrics.Enabled,
		ServiceName: "busjam",
		Interval:    s.Metrics.Interval,
		File:        s.Metrics.File,
	})
	if err != nil {
		return nil, err
	}
	if provider.Enabled() {
		logger.Info().Dur("interval", s.Metrics.Interval).Str("file", s.Metrics.File).Msg("metric export enabled")
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to flush metrics")
		}
	}, nil
}

func newLogger(s *settings.Settings) (zerolog.Logger, io.Closer, error) {
	cfg := logging.Config{
		Level:   s.Log.Level,
		Format:  s.Log.Format,
		Service: "busjam",
	}
	if s.Graylog.Enabled {
		cfg.GraylogAddress = s.Graylog.Address
	}
	return logging.New(cfg)
}

// services holds everything the transports need.
type services struct {
	game     service.GameService
	sessions *session.Manager
	store    *progress.Store
	logger   zerolog.Logger
}

func (s *services) Close() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close progress store")
		}
	}
}

// initializeServices wires the level catalogue, sessions, progression and the
// game service.
func initializeServices(s *settings.Settings, logger zerolog.Logger) (*services, error) {
	levels, err := config.NewManager(s.Levels.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create level catalogue: %w", err)
	}

	if s.Levels.Default != "" {
		if err := levels.SetDefault(s.Levels.Default); err != nil {
			return nil, fmt.Errorf("failed to set default level %s: %w", s.Levels.Default, err)
		}
	}

	persistence, err := session.NewFilePersistence(s.Sessions.Dir, levels, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create session persistence: %w", err)
	}
	sessionManager := session.NewManagerWithPersistence(persistence, logger)

	metrics, err := telemetry.New(sessionManager.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithMetrics(metrics),
	}

	svcs := &services{sessions: sessionManager, logger: logger}
	if s.Progress.Enabled {
		store, err := progress.Open(s.Store.Driver, s.Store.DSN, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open progress store: %w", err)
		}
		svcs.store = store
		opts = append(opts, service.WithProgress(store, s.Progress.Profile, s.Progress.EnforceUnlocks))
	}

	// the service must observe restored sessions, so it is built first
	svcs.game = service.NewGameService(sessionManager, levels, opts...)

	if err := sessionManager.LoadPersistedSessions(); err != nil {
		logger.Warn().Err(err).Msg("failed to load persisted sessions")
	}

	return svcs, nil
}

// startBackground runs the level clock, expiry cleanup and periodic save
// until ctx is done.
func startBackground(ctx context.Context, wg *sync.WaitGroup, s *settings.Settings, svcs *services, hub *websocket.Hub) {
	if s.Clock.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clockRoutine(ctx, svcs.game, hub, svcs.logger)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		sessionCleanupRoutine(ctx, svcs.sessions, s.Sessions.MaxAge, svcs.logger)
	}()

	if s.Sessions.SyncEvery > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			syncRoutine(ctx, svcs.game, svcs.sessions, s.Sessions.SyncEvery, svcs.logger)
		}()
	}
}

// clockRoutine advances every playing session by one second per second.
func clockRoutine(ctx context.Context, svc service.GameService, hub *websocket.Hub, logger zerolog.Logger) {
	ticker := time.NewTicker(clockEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			states, err := svc.TickAll(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("clock tick failed")
				continue
			}
			if hub == nil {
				continue
			}
			for id, state := range states {
				if state.GameOver {
					hub.BroadcastEvents(id, state.LastEvents)
				}
				hub.BroadcastToSession(id, state)
			}
		}
	}
}

// sessionCleanupRoutine periodically drops sessions that have not been
// accessed within maxAge. Their files stay and are restored on demand.
func sessionCleanupRoutine(ctx context.Context, manager *session.Manager, maxAge time.Duration, logger zerolog.Logger) {
	if maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(cleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := manager.CleanupExpiredSessions(maxAge); removed > 0 {
				logger.Info().Int("removed", removed).Msg("cleaned up expired sessions")
			}
		}
	}
}

// syncRoutine periodically drops sessions whose files were deleted and
// persists the rest so clock progress survives a restart.
func syncRoutine(ctx context.Context, svc service.GameService, manager *session.Manager, every time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := svc.SaveAll(context.Background()); err != nil {
				logger.Warn().Err(err).Msg("final session save failed")
			}
			return
		case <-ticker.C:
			manager.PruneMissing(every)
			if err := svc.SaveAll(ctx); err != nil {
				logger.Warn().Err(err).Msg("periodic session save failed")
			}
		}
	}
}

// newRouter mounts the MCP endpoint next to the REST API.
func newRouter(svc service.GameService, hub *websocket.Hub, baseURL string, logger zerolog.Logger) http.Handler {
	apiServer := api.NewServer(svc, hub, logger)
	apiServer.Router().Handle("/mcp", mcp.NewClient(baseURL, logger))
	return apiServer
}

func loopbackURL(host string, port int) string {
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, fmt.Sprint(port)))
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	logger, closer, err := newLogger(s)
	if err != nil {
		return err
	}
	defer closer.Close()

	logger.Info().Str("version", Version).Msg("starting " + AppName)

	stopMetrics, err := startMetrics(s, logger)
	if err != nil {
		return err
	}
	defer stopMetrics()

	svcs, err := initializeServices(s, logger)
	if err != nil {
		return err
	}
	defer svcs.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := websocket.NewHub(logger)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	startBackground(ctx, &wg, s, svcs, hub)

	addr := s.Addr()
	handler := newRouter(svcs.game, hub, loopbackURL(s.Server.Host, s.Server.Port), logger)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", addr).
			Str("api", "/api").
			Str("ws", "/ws?session=<session_id>").
			Str("mcp", "/mcp").
			Msg("HTTP server listening")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if s.Ngrok.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(ctx, s.Ngrok, handler, logger)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-serverErr:
		stop()
		wg.Wait()
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown error")
	}

	wg.Wait()
	logger.Info().Msg("server stopped")
	return nil
}

// runNgrok serves handler through an ngrok tunnel until ctx is done.
func runNgrok(ctx context.Context, cfg settings.Ngrok, handler http.Handler, logger zerolog.Logger) {
	if cfg.AuthToken == "" {
		logger.Warn().Msg("ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN or BUSJAM_NGROK_AUTHTOKEN)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if cfg.Domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.Domain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(cfg.AuthToken))
	if err != nil {
		logger.Error().Err(err).Msg("failed to start ngrok tunnel")
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close ngrok tunnel")
		}
	}()

	logger.Info().Str("url", tun.URL()).Msg("ngrok tunnel established")
	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		logger.Warn().Err(err).Msg("ngrok server error")
	}
	logger.Info().Msg("ngrok tunnel closed")
}

// mcpAction runs an MCP stdio server. It reuses an API server already
// listening on the configured port; otherwise it starts an internal one on a
// random loopback port.
func mcpAction(ctx context.Context, cmd *cli.Command) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	logger, closer, err := newLogger(s)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	baseURL := loopbackURL(s.Server.Host, s.Server.Port)
	if !apiAvailable(baseURL) {
		logger.Info().Msg("no external API server found, starting internal HTTP server")

		stopMetrics, err := startMetrics(s, logger)
		if err != nil {
			return err
		}
		defer stopMetrics()

		svcs, err := initializeServices(s, logger)
		if err != nil {
			return err
		}
		defer svcs.Close()

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		baseURL = "http://" + listener.Addr().String()

		var wg sync.WaitGroup
		startBackground(ctx, &wg, s, svcs, nil)

		httpServer := &http.Server{Handler: api.NewServer(svcs.game, nil, logger)}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("internal HTTP server error")
			}
		}()
		defer func() {
			stop()
			httpServer.Close()
			wg.Wait()
		}()
	}

	logger.Info().Str("api", baseURL).Msg("MCP stdio server ready")
	if err := server.ServeStdio(mcp.NewClient(baseURL, logger).GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

func apiAvailable(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func validateAction(ctx context.Context, cmd *cli.Command) error {
	var results []validate.Result
	if cmd.Args().Len() > 0 {
		for _, file := range cmd.Args().Slice() {
			results = append(results, validate.File(file))
		}
	} else {
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		results, err = validate.Dir(s.Levels.Dir)
		if err != nil {
			return err
		}
	}

	if !validate.Report(cmd.Root().Writer, results) {
		return errors.New("level validation failed")
	}
	return nil
}
