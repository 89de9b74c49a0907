package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/autonex-ai/autonex-client/internal/api"
	"github.com/autonex-ai/autonex-client/internal/auth"
	"github.com/autonex-ai/autonex-client/internal/config"
	"github.com/autonex-ai/autonex-client/internal/logger"
	"github.com/autonex-ai/autonex-client/internal/runner"
	"github.com/autonex-ai/autonex-client/internal/sched"
	"github.com/autonex-ai/autonex-client/internal/session"
	"github.com/autonex-ai/autonex-client/internal/store"
)

func main() {
	testID := flag.Int64("test", 0, "test id to start or resume")
	forceLogin := flag.Bool("login", false, "prompt for credentials even if a token is stored")
	logout := flag.Bool("logout", false, "clear the stored credential and session, then exit")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Open State Store ──────────────────────────────────────────────
	kv, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("Failed to open state store")
	}
	defer kv.Close()

	authMgr := auth.NewManager(kv, log)

	if *logout {
		if err := authMgr.Logout(ctx); err != nil {
			log.Fatal().Err(err).Msg("Logout failed")
		}
		fmt.Println("Logged out.")
		return
	}

	// ─── Authenticate ──────────────────────────────────────────────────
	var identity *auth.Identity
	client := api.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout, func() string {
		if identity == nil {
			return ""
		}
		return identity.Token
	}, log)

	identity, err = authMgr.Current(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load credential")
	}
	if identity != nil && !*forceLogin {
		if exp := auth.TokenExpiry(identity.Token); !exp.IsZero() && time.Now().After(exp) {
			fmt.Println("Stored credential expired; please log in again.")
			identity = nil
		}
	}
	if identity == nil || *forceLogin {
		identity, err = promptLogin(ctx, authMgr, client)
		if err != nil {
			log.Fatal().Err(err).Msg("Login failed")
		}
	}
	fmt.Printf("Logged in as %s\n", identity.Username)

	// ─── Load or Start the Attempt ─────────────────────────────────────
	sess, err := session.NewStore(ctx, kv, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load session state")
	}

	snap := sess.Snapshot()
	switch {
	case snap.Active():
		fmt.Printf("Resuming session %s (question %d of %d)\n",
			snap.SessionID, snap.CurrentIndex+1, snap.TotalQuestions)
	case snap.IsCompleted:
		// Completed flag without an id: the attempt ended; runner reports it.
	default:
		if *testID == 0 {
			fmt.Println("No attempt in progress. Pass -test <id> to start one.")
			return
		}
		remote, err := client.StartTest(ctx, *testID, identity.UserID)
		if err != nil {
			var apiErr *api.Error
			if errors.As(err, &apiErr) && apiErr.IsNoQuestions() {
				fmt.Println("This test has no questions yet; nothing to attempt.")
				return
			}
			log.Fatal().Err(err).Int64("test_id", *testID).Msg("Failed to start test")
		}
		if remote.IsCompleted {
			if err := sess.Complete(ctx); err != nil {
				log.Fatal().Err(err).Msg("Failed to persist session state")
			}
		} else {
			err = sess.Start(ctx, session.Snapshot{
				SessionID:      strconv.FormatInt(remote.SessionID, 10),
				CurrentIndex:   remote.CurrentIndex,
				TotalQuestions: remote.TotalQuestions,
			})
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to persist session state")
			}
			fmt.Printf("Started session %d (%d questions)\n", remote.SessionID, remote.TotalQuestions)
		}
	}

	// ─── Run the Attempt ───────────────────────────────────────────────
	r := runner.New(client, sess, sched.New(), &consoleListener{}, log)
	defer r.Close()
	r.Start(ctx)

	repl(ctx, r)
}

// openStore picks the persistence backend from configuration.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.KV, error) {
	switch cfg.StoreBackend {
	case "sqlite":
		return store.OpenSQLite(cfg.StatePath)
	case "redis":
		return store.OpenRedis(ctx, cfg.RedisURL, "runner")
	case "memory":
		log.Warn().Msg("Using in-memory state; nothing will survive exit")
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// promptLogin reads credentials from the terminal and runs the exchange.
func promptLogin(ctx context.Context, mgr *auth.Manager, client *api.Client) (*auth.Identity, error) {
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Username: ")
	username, _ := reader.ReadString('\n')
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username is required")
	}

	fmt.Print("Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}

	return mgr.Login(ctx, client, username, string(bytePassword))
}

// consoleListener renders runner events for the terminal. Countdown ticks are
// ignored here; the time command reads the remaining time on demand.
type consoleListener struct {
	runner.NopListener
}

func (consoleListener) StatusChanged(status session.Status) {
	fmt.Printf("\n[%s]\n> ", status)
}

func (consoleListener) QuestionLoaded(q *api.Question) {
	fmt.Println("\n──────────────────────────────────────────")
	if q.TaskID != nil {
		fmt.Printf("Task %s\n", *q.TaskID)
	}
	fmt.Printf("Link: %s\n", q.Link)
	if q.Description != "" {
		fmt.Println(q.Description)
	}
	fmt.Println("──────────────────────────────────────────")
	fmt.Print("> ")
}

func (consoleListener) TimerDegraded(degraded bool) {
	if degraded {
		fmt.Print("\n(timer unavailable; retrying)\n> ")
	} else {
		fmt.Print("\n(timer restored)\n> ")
	}
}

func (consoleListener) RetryScheduled(attempt int, delay time.Duration) {
	fmt.Printf("\n(connection lost; retry %d in %s)\n> ", attempt, delay)
}

func (consoleListener) Notice(msg string) {
	fmt.Printf("\n%s\n> ", msg)
}

// repl is the interactive answer loop.
func repl(ctx context.Context, r *runner.Runner) {
	fmt.Println(`Commands: [a]nswer  [q]uestion  [t]ime  [s]tatus  [r]etry  leave  quit`)
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Print("> ")
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "a", "answer":
			submit(ctx, r, scanner)
		case "q", "question":
			if q := r.Question(); q != nil {
				fmt.Printf("Link: %s\n%s\n", q.Link, q.Description)
			} else {
				fmt.Println("No question loaded.")
			}
		case "t", "time":
			if r.TimerDegraded() {
				fmt.Println("Timer unavailable.")
			} else {
				fmt.Printf("Time remaining: %s\n", r.Remaining().Round(time.Second))
			}
		case "s", "status":
			snap := r.Progress()
			fmt.Printf("Status: %s", r.Status())
			if snap.Active() {
				fmt.Printf("  question %d of %d", snap.CurrentIndex+1, snap.TotalQuestions)
			}
			fmt.Println()
		case "r", "retry":
			r.RetryNow()
			fmt.Println("Retrying...")
		case "leave":
			if !r.Status().Terminal() {
				fmt.Println("The attempt is still running; finish it or quit.")
				break
			}
			if err := r.Leave(ctx); err != nil {
				fmt.Printf("Leave failed: %v\n", err)
				break
			}
			fmt.Println("Session cleared.")
			return
		case "quit", "exit":
			fmt.Println("Progress is saved; run again to resume.")
			return
		case "", "help":
			fmt.Println(`Commands: [a]nswer  [q]uestion  [t]ime  [s]tatus  [r]etry  leave  quit`)
		default:
			fmt.Println("Unknown command. Type help for the list.")
		}
		fmt.Print("> ")
	}
}

// submit collects one answer interactively and sends it.
func submit(ctx context.Context, r *runner.Runner, scanner *bufio.Scanner) {
	if r.Question() == nil {
		fmt.Println("No question loaded.")
		return
	}

	fmt.Print("Result [s=Success, f=Failure]: ")
	if !scanner.Scan() {
		return
	}
	var status string
	switch strings.TrimSpace(scanner.Text()) {
	case "s", "S":
		status = runner.StatusSuccess
	case "f", "F":
		status = runner.StatusFailure
	default:
		fmt.Println("Answer not sent: result must be s or f.")
		return
	}

	fmt.Print("Explanation: ")
	if !scanner.Scan() {
		return
	}
	explanation := scanner.Text()

	fmt.Print("Critical error (enter for none): ")
	if !scanner.Scan() {
		return
	}
	criticalError := scanner.Text()

	err := r.Submit(ctx, runner.Answer{
		Status:        status,
		Explanation:   explanation,
		CriticalError: criticalError,
	})

	var verr *runner.ValidationError
	switch {
	case err == nil:
		fmt.Println("Answer saved.")
	case errors.As(err, &verr):
		for field, msg := range verr.Fields {
			fmt.Printf("  %s: %s\n", field, msg)
		}
		fmt.Println("Answer not sent; fix the fields above and try again.")
	case errors.Is(err, runner.ErrOutOfSync):
		fmt.Println("The session moved on; reloading the current question.")
	case errors.Is(err, runner.ErrSubmitRejected):
		fmt.Printf("Submission failed: %v\n", err)
		fmt.Println("Your answer was not recorded; submit it again.")
	default:
		fmt.Printf("Submission failed: %v\n", err)
	}
}
