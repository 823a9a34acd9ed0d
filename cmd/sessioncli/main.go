// Package main provides the remote session client.
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
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/flowshift/internal/api/connect"
	"github.com/osa030/flowshift/internal/domain/focus"
	"github.com/osa030/flowshift/internal/infra/credentials"
	"github.com/osa030/flowshift/internal/infra/supabase"
)

var (
	app       = kingpin.New("flowshift-sessioncli", "flowshift remote session client")
	server    = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token     = app.Flag("token", "Access token (or set FLOWSHIFT_TOKEN env)").Envar("FLOWSHIFT_TOKEN").String()
	credsPath = app.Flag("credentials", "Use the access token stored by 'flowshift login'").String()

	modesCmd = app.Command("modes", "List focus modes")

	focusCmd     = app.Command("focus", "Start a focus session")
	focusMode    = focusCmd.Arg("mode", "Focus mode").Default(string(focus.ModePomodoro)).String()
	focusMinutes = focusCmd.Flag("minutes", "Duration in minutes (required for custom)").Short('m').Int()

	breatheCmd     = app.Command("breathe", "Start a breathing session")
	breatheSeconds = breatheCmd.Flag("seconds", "Exercise length in seconds").Short('s').Int()

	pauseCmd   = app.Command("pause", "Pause a session")
	pauseID    = pauseCmd.Arg("session-id", "Session ID (UUID)").Required().String()
	resumeCmd  = app.Command("resume", "Resume a session")
	resumeID   = resumeCmd.Arg("session-id", "Session ID (UUID)").Required().String()
	resetCmd   = app.Command("reset", "Reset a session")
	resetID    = resetCmd.Arg("session-id", "Session ID (UUID)").Required().String()
	restartCmd = app.Command("restart", "Reset a session and start it again")
	restartID  = restartCmd.Arg("session-id", "Session ID (UUID)").Required().String()
	statusCmd  = app.Command("status", "Show a session's status")
	statusID   = statusCmd.Arg("session-id", "Session ID (UUID)").Required().String()
	closeCmd   = app.Command("close", "Close a session")
	closeID    = closeCmd.Arg("session-id", "Session ID (UUID)").Required().String()

	listCmd = app.Command("list", "List your sessions")

	watchCmd = app.Command("watch", "Stream a session's events")
	watchID  = watchCmd.Arg("session-id", "Session ID (UUID)").Required().String()

	insightsCmd = app.Command("insights", "Show stats and insights")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	var opts []connect.ClientOption
	if accessToken := resolveToken(); accessToken != "" {
		opts = append(opts, connect.WithInterceptors(apiconnect.NewBearerInterceptor(supabase.StaticTokenSource(accessToken))))
	}
	client := apiconnect.NewClient(http.DefaultClient, *server, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case modesCmd.FullCommand():
		err = listModes(ctx, client)
	case focusCmd.FullCommand():
		err = printStatus(client.StartFocus(ctx, *focusMode, *focusMinutes*60))
	case breatheCmd.FullCommand():
		err = printStatus(client.StartBreathing(ctx, *breatheSeconds))
	case pauseCmd.FullCommand():
		err = printStatus(client.Pause(ctx, *pauseID))
	case resumeCmd.FullCommand():
		err = printStatus(client.Resume(ctx, *resumeID))
	case resetCmd.FullCommand():
		err = printStatus(client.Reset(ctx, *resetID))
	case restartCmd.FullCommand():
		err = printStatus(client.Restart(ctx, *restartID))
	case statusCmd.FullCommand():
		err = printStatus(client.GetStatus(ctx, *statusID))
	case closeCmd.FullCommand():
		if err = client.Close(ctx, *closeID); err == nil {
			fmt.Println("Session closed")
		}
	case listCmd.FullCommand():
		err = listSessions(ctx, client)
	case watchCmd.FullCommand():
		err = watch(ctx, client, *watchID)
	case insightsCmd.FullCommand():
		err = showInsights(ctx, client)
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func resolveToken() string {
	if *token != "" {
		return *token
	}
	if *credsPath == "" {
		return ""
	}
	creds, err := credentials.NewFile(*credsPath).Load()
	if err != nil || creds == nil {
		return ""
	}
	return creds.AccessToken
}

func listModes(ctx context.Context, client *apiconnect.Client) error {
	modes, err := client.ListModes(ctx)
	if err != nil {
		return err
	}
	fmt.Println("Focus Modes:")
	for _, m := range modes {
		fmt.Printf("  %-10s %-16s %6s  %s\n", m.Mode, m.Label, focus.FormatClock(m.DurationSec), m.Description)
	}
	return nil
}

func listSessions(ctx context.Context, client *apiconnect.Client) error {
	sessions, err := client.ListSessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions (guest sessions are not listed)")
		return nil
	}
	for _, s := range sessions {
		fmt.Printf("%s  %-9s created %s\n", s.SessionID, s.Kind, s.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("  %s\n", formatStatus(s.Status))
	}
	return nil
}

func watch(ctx context.Context, client *apiconnect.Client, sessionID string) error {
	stream, err := client.Subscribe(ctx, sessionID)
	if err != nil {
		return err
	}
	defer stream.Close()

	fmt.Println("Subscribed to session events. Press Ctrl+C to exit.")

	for stream.Receive() {
		printNotification(stream.Msg())
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	fmt.Println("Stream ended")
	return nil
}

func showInsights(ctx context.Context, client *apiconnect.Client) error {
	resp, err := client.GetInsights(ctx)
	if err != nil {
		return err
	}
	fmt.Println("=== STATS ===")
	fmt.Printf("Sessions completed: %d\n", resp.Stats.SessionsCompleted)
	fmt.Printf("Total focus time:   %s\n", focus.FormatClock(int(resp.Stats.TotalFocusSec)))
	fmt.Printf("Current streak:     %d days\n", resp.Stats.CurrentStreak)
	fmt.Printf("Longest streak:     %d days\n", resp.Stats.LongestStreak)

	fmt.Println("\n=== INSIGHTS ===")
	if resp.Sample {
		fmt.Println("(sample insights)")
	}
	for _, in := range resp.Insights {
		fmt.Printf("[%s] %s: %s\n", in.Type, in.Title, in.Description)
	}
	return nil
}

func printStatus(status apiconnect.Status, err error) error {
	if err != nil {
		return err
	}
	fmt.Printf("Session ID: %s\n", status.SessionID)
	fmt.Println(formatStatus(status))
	return nil
}

func printNotification(n *apiconnect.Notification) {
	fmt.Printf("[Sequence: %d] %-13s %s\n", n.SequenceNo, n.Type, formatStatus(n.Status))
}

func formatStatus(s apiconnect.Status) string {
	switch s.Kind {
	case "breathing":
		return fmt.Sprintf("%-8s %s  %-6s %s  cycles=%d", s.State, focus.FormatClock(s.Remaining), s.Phase, s.Message, s.Cycles)
	default:
		return fmt.Sprintf("%-8s %s / %s  %s  completed=%d",
			s.State, focus.FormatClock(s.Remaining), focus.FormatClock(s.Total), s.Label, s.SessionsCompleted)
	}
}
