// Package main provides the local focus timer and breathing exercise CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/chzyer/readline"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/osa030/flowshift/cmd/flowshift/console"
	"github.com/osa030/flowshift/internal/app/insights"
	"github.com/osa030/flowshift/internal/app/timer"
	"github.com/osa030/flowshift/internal/domain/focus"
	"github.com/osa030/flowshift/internal/domain/identity"
	"github.com/osa030/flowshift/internal/infra/config"
	"github.com/osa030/flowshift/internal/infra/credentials"
	"github.com/osa030/flowshift/internal/infra/logger"
	"github.com/osa030/flowshift/internal/infra/store"
	"github.com/osa030/flowshift/internal/infra/supabase"
)

const appName = "flowshift"

var (
	app             = kingpin.New(appName, "Focus timer and breathing exercises in the terminal")
	configPath      = app.Flag("config", "Path to config file (built-in defaults when missing)").Default("config/flowshift.yaml").String()
	credentialsPath = app.Flag("credentials", "Path to the credentials file").Envar("FLOWSHIFT_CREDENTIALS").String()
	guest           = app.Flag("guest", "Run as guest even when signed in").Bool()
	verbose         = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile         = app.Flag("logfile", "Path to log file (default: stderr)").String()

	modesCmd = app.Command("modes", "List focus modes")

	focusCmd     = app.Command("focus", "Run a focus session")
	focusMode    = focusCmd.Arg("mode", "Focus mode (pomodoro, deep, mindful, custom)").Default(string(focus.ModePomodoro)).String()
	focusMinutes = focusCmd.Flag("minutes", "Duration in minutes (required for custom)").Short('m').Int()

	breatheCmd     = app.Command("breathe", "Run a guided breathing exercise")
	breatheSeconds = breatheCmd.Flag("seconds", "Exercise length in seconds (default from config)").Short('s').Int()

	loginCmd      = app.Command("login", "Sign in with email and password")
	loginEmail    = loginCmd.Arg("email", "Email address").Required().String()
	loginPassword = loginCmd.Flag("password", "Password (prompted when empty)").Envar("FLOWSHIFT_PASSWORD").String()

	signupCmd      = app.Command("signup", "Create an account")
	signupEmail    = signupCmd.Arg("email", "Email address").Required().String()
	signupPassword = signupCmd.Flag("password", "Password (prompted when empty)").Envar("FLOWSHIFT_PASSWORD").String()

	logoutCmd = app.Command("logout", "Sign out and remove stored credentials")
	whoamiCmd = app.Command("whoami", "Show the signed-in user")
	statsCmd  = app.Command("stats", "Show focus stats and insights")
)

// cli holds what every command needs.
type cli struct {
	cfg    *config.Config
	client *supabase.Client // nil when the hosted backend is not configured
	creds  *credentials.File
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{Output: "stderr", Level: "warn"}
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

	c, err := newCLI()
	if err != nil {
		fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case modesCmd.FullCommand():
		err = c.modes()
	case focusCmd.FullCommand():
		err = c.focus(ctx, focus.Mode(*focusMode), *focusMinutes)
	case breatheCmd.FullCommand():
		err = c.breathe(ctx, *breatheSeconds)
	case loginCmd.FullCommand():
		err = c.login(ctx, *loginEmail, *loginPassword)
	case signupCmd.FullCommand():
		err = c.signup(ctx, *signupEmail, *signupPassword)
	case logoutCmd.FullCommand():
		err = c.logout(ctx)
	case whoamiCmd.FullCommand():
		err = c.whoami()
	case statsCmd.FullCommand():
		err = c.stats(ctx)
	}
	if err != nil {
		stop()
		closeLog()
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func newCLI() (*cli, error) {
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		return nil, err
	}

	path := *credentialsPath
	if path == "" {
		if path, err = credentials.DefaultPath(appName); err != nil {
			return nil, err
		}
	}

	c := &cli{cfg: cfg, creds: credentials.NewFile(path)}
	if cfg.AuthEnabled() {
		c.client, err = supabase.New(supabase.Config{
			URL:     cfg.Supabase.URL,
			AnonKey: cfg.Supabase.AnonKey,
			Timeout: cfg.SupabaseTimeout(),
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create supabase client")
		}
	}
	return c, nil
}

// caller returns the signed-in identity and a token source that stores rotated tokens.
func (c *cli) caller() (identity.Identity, oauth2.TokenSource, error) {
	if *guest {
		return identity.Guest(), nil, nil
	}
	creds, err := c.creds.Load()
	if err != nil {
		return identity.Identity{}, nil, err
	}
	if creds == nil {
		return identity.Guest(), nil, nil
	}
	if c.client == nil {
		return creds.Identity(), nil, nil
	}

	tokens := c.client.TokenSource(creds.Token(), func(s *supabase.Session) {
		creds.Update(s.Token())
		if err := c.creds.Save(creds); err != nil {
			zlog.Warn().Err(err).Msg("flowshift: failed to store refreshed credentials")
		}
	})
	return creds.Identity(), tokens, nil
}

func (c *cli) modes() error {
	fmt.Println("Focus Modes:")
	for _, m := range focus.NewCatalog(c.cfg.FocusModes()).All() {
		fmt.Printf("  %-10s %-16s %6s  %s\n", m.Mode, m.Label, focus.FormatClock(m.DurationSec), m.Description)
	}
	fmt.Printf("  %-10s %-16s %6s  %s\n", focus.ModeCustom, "Custom", "-", "pass --minutes")
	return nil
}

func (c *cli) focus(ctx context.Context, mode focus.Mode, minutes int) error {
	session, err := focus.NewCatalog(c.cfg.FocusModes()).Resolve(mode, minutes*60)
	if err != nil {
		return err
	}

	owner, tokens, err := c.caller()
	if err != nil {
		return err
	}

	st, err := store.Open(c.cfg, c.client)
	if err != nil {
		return err
	}
	defer st.Close()

	var recorder timer.Recorder
	if owner.IsAuthenticated() {
		recorder = st.Scoped(owner, tokens)
	}

	ft := timer.NewFocusTimer(timer.FocusConfig{
		TickInterval:  c.cfg.TickInterval(),
		Recorder:      recorder,
		Identity:      owner,
		RecordTimeout: c.cfg.RecordTimeout(),
	})

	title := fmt.Sprintf("%s - %s (%s) as %s", session.Label, session.Description, focus.FormatClock(session.DurationSec), owner.DisplayName())
	if !owner.IsAuthenticated() {
		title += " - sign in to save your sessions"
	}
	return console.Run(ctx, &console.FocusController{FocusTimer: ft, Session: session}, title)
}

func (c *cli) breathe(ctx context.Context, seconds int) error {
	if seconds <= 0 {
		seconds = c.cfg.Breathing.DurationSec
	}
	pattern := c.cfg.BreathingPattern()

	bc := timer.NewBreathingCycle(timer.BreathingConfig{TickInterval: c.cfg.TickInterval()})
	title := fmt.Sprintf("Breathing %d-%d-%d-%d for %s",
		pattern.InhaleSec, pattern.HoldSec, pattern.ExhaleSec, pattern.PauseSec, focus.FormatClock(seconds))
	return console.Run(ctx, &console.BreathingController{BreathingCycle: bc, Pattern: pattern, DurationSec: seconds}, title)
}

func (c *cli) requireBackend() error {
	if c.client == nil {
		return errors.New("sign-in is not configured: set SUPABASE_URL and SUPABASE_ANON_KEY")
	}
	return nil
}

func (c *cli) login(ctx context.Context, email, password string) error {
	if err := c.requireBackend(); err != nil {
		return err
	}
	password, err := promptPassword(password)
	if err != nil {
		return err
	}

	session, err := c.client.SignIn(ctx, email, password)
	if err != nil {
		return errors.Wrap(err, "sign-in failed")
	}
	if err := c.saveSession(session); err != nil {
		return err
	}
	fmt.Printf("Signed in as %s\n", session.User.Email)
	return nil
}

func (c *cli) signup(ctx context.Context, email, password string) error {
	if err := c.requireBackend(); err != nil {
		return err
	}
	password, err := promptPassword(password)
	if err != nil {
		return err
	}

	session, err := c.client.SignUp(ctx, email, password)
	if errors.Is(err, supabase.ErrConfirmationRequired) {
		fmt.Println("Account created. Check your email to confirm it, then run 'flowshift login'.")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "sign-up failed")
	}
	if err := c.saveSession(session); err != nil {
		return err
	}
	fmt.Printf("Account created, signed in as %s\n", session.User.Email)
	return nil
}

func (c *cli) saveSession(session *supabase.Session) error {
	tok := session.Token()
	return c.creds.Save(&credentials.Credentials{
		UserID:       session.User.ID,
		Email:        session.User.Email,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	})
}

func (c *cli) logout(ctx context.Context) error {
	creds, err := c.creds.Load()
	if err != nil {
		return err
	}
	if creds == nil {
		fmt.Println("Not signed in.")
		return nil
	}
	if c.client != nil {
		if err := c.client.SignOut(ctx, creds.AccessToken); err != nil {
			zlog.Warn().Err(err).Msg("flowshift: remote sign-out failed, removing local credentials anyway")
		}
	}
	if err := c.creds.Remove(); err != nil {
		return err
	}
	fmt.Println("Signed out.")
	return nil
}

func (c *cli) whoami() error {
	owner, _, err := c.caller()
	if err != nil {
		return err
	}
	if !owner.IsAuthenticated() {
		fmt.Println("Guest User (sessions are not saved)")
		return nil
	}
	fmt.Printf("%s (%s)\n", owner.DisplayName(), owner.UserID)
	return nil
}

func (c *cli) stats(ctx context.Context) error {
	owner, tokens, err := c.caller()
	if err != nil {
		return err
	}
	st, err := store.Open(c.cfg, c.client)
	if err != nil {
		return err
	}
	defer st.Close()

	report, err := insights.NewService(st).Report(ctx, owner, tokens)
	if err != nil {
		return err
	}

	fmt.Printf("Stats for %s\n", owner.DisplayName())
	fmt.Printf("  Sessions completed: %d\n", report.Stats.SessionsCompleted)
	fmt.Printf("  Total focus time:   %s\n", report.Stats.TotalFocusTime.Round(time.Minute))
	fmt.Printf("  Current streak:     %d days\n", report.Stats.CurrentStreak)
	fmt.Printf("  Longest streak:     %d days\n", report.Stats.LongestStreak)

	fmt.Println("\nInsights:")
	if report.Sample {
		fmt.Println("  (examples - complete focus sessions while signed in to see your own)")
	}
	for _, in := range report.Insights {
		line := fmt.Sprintf("  [%s] %s: %s", in.Type, in.Title, in.Description)
		if in.Value != "" {
			line += " (" + in.Value + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func promptPassword(password string) (string, error) {
	if password != "" {
		return password, nil
	}
	rl, err := readline.New("")
	if err != nil {
		return "", errors.Wrap(err, "failed to open terminal")
	}
	defer rl.Close()

	secret, err := rl.ReadPassword("Password: ")
	if err != nil {
		return "", errors.Wrap(err, "failed to read password")
	}
	password = strings.TrimSpace(string(secret))
	if password == "" {
		return "", errors.New("password is required")
	}
	return password, nil
}
