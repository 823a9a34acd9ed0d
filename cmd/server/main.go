// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/flowshift/internal/api/connect"
	"github.com/osa030/flowshift/internal/api/httpapi"
	"github.com/osa030/flowshift/internal/app/insights"
	"github.com/osa030/flowshift/internal/app/session"
	"github.com/osa030/flowshift/internal/domain/focus"
	"github.com/osa030/flowshift/internal/infra/config"
	"github.com/osa030/flowshift/internal/infra/logger"
	"github.com/osa030/flowshift/internal/infra/store"
	"github.com/osa030/flowshift/internal/infra/supabase"
)

var (
	app        = kingpin.New("flowshift-server", "flowshift focus and breathing session server")
	configPath = app.Flag("config", "Path to config file (built-in defaults when missing)").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	listModesCmd = app.Command("list-modes", "List configured focus modes and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	closeLog, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closeLog()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == listModesCmd.FullCommand() {
		printModes(cfg)
		return
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %+v", err)
		closeLog()
		os.Exit(1)
	}
}

// run executes the main server logic so deferred cleanup runs on every return path.
func run(cfg *config.Config) error {
	var client *supabase.Client
	var authenticator apiconnect.Authenticator
	if cfg.AuthEnabled() {
		var err error
		client, err = supabase.New(supabase.Config{
			URL:     cfg.Supabase.URL,
			AnonKey:    cfg.Supabase.AnonKey,
			ServiceKey: cfg.Supabase.ServiceKey,
			Timeout:    cfg.SupabaseTimeout(),
		})
		if err != nil {
			return errors.Wrap(err, "failed to create supabase client")
		}
		authenticator = client
		zlog.Info().Msgf("Authentication enabled: url=%s service_key=%t", cfg.Supabase.URL, cfg.Supabase.ServiceKey != "")
	} else {
		zlog.Info().Msg("Authentication disabled, every caller is a guest")
	}

	st, err := store.Open(cfg, client)
	if err != nil {
		return errors.Wrap(err, "failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			zlog.Error().Err(err).Msg("Failed to close store")
		}
	}()
	zlog.Info().Msgf("Store opened: driver=%s", st.Driver())

	sessionMgr := session.NewManager(session.Config{
		TickInterval:         cfg.TickInterval(),
		RecordTimeout:        cfg.RecordTimeout(),
		IdleTimeout:          cfg.IdleTimeout(),
		MaxSessions:          cfg.Session.MaxSessions,
		EventBuffer:          cfg.Session.EventBuffer,
		Catalog:              focus.NewCatalog(cfg.FocusModes()),
		Pattern:              cfg.BreathingPattern(),
		BreathingDurationSec: cfg.Breathing.DurationSec,
		Store:                st,
	})

	authInterceptor := apiconnect.NewAuthInterceptor(authenticator)
	sessionService := apiconnect.NewSessionService(sessionMgr, insights.NewService(st))
	sessionPath, sessionHandler := apiconnect.NewSessionServiceHandler(
		sessionService,
		connect.WithInterceptors(authInterceptor),
	)

	router := httpapi.NewRouter(httpapi.NewServer(sessionMgr, authInterceptor))
	router.Handle(sessionPath+"*", sessionHandler)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(router, &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		sessionMgr.Close()
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	// Close sessions first so open streams end and in-flight records are written.
	sessionMgr.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}

// printModes prints the focus mode catalog.
func printModes(cfg *config.Config) {
	fmt.Println("Focus Modes:")
	for _, m := range focus.NewCatalog(cfg.FocusModes()).All() {
		fmt.Printf("  %-10s %-16s %6s  %s\n", m.Mode, m.Label, focus.FormatClock(m.DurationSec), m.Description)
	}
	fmt.Printf("  %-10s %-16s %6s  %s\n", focus.ModeCustom, "Custom", "-", "any duration, given at start")

	p := cfg.BreathingPattern()
	fmt.Printf("\nBreathing: inhale %ds, hold %ds, exhale %ds, pause %ds, default %s\n",
		p.InhaleSec, p.HoldSec, p.ExhaleSec, p.PauseSec, focus.FormatClock(cfg.Breathing.DurationSec))
}
