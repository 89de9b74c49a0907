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
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/autonex-ai/autonex-client/internal/api"
	"github.com/autonex-ai/autonex-client/internal/auth"
	"github.com/autonex-ai/autonex-client/internal/config"
	"github.com/autonex-ai/autonex-client/internal/logger"
	"github.com/autonex-ai/autonex-client/internal/store"
)

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: admin <command> [flags]

Commands:
  login                          authenticate and store the credential
  logout                         clear the stored credential
  tests                          list all tests
  active                         show the active test
  create-test -title T [flags]   create a test
  activate <test-id>             make a test the active one
  deactivate <test-id>           clear a test's active flag
  delete-test <test-id>          delete a test and its questions
  questions <test-id>            list a test's questions
  add-question -test N -link L   add a question to a test
  delete-question <question-id>  delete a question
  users                          list accounts
  results <test-id>              list a test's session results
  report <session-id>            show one session's graded report
  evaluate <session-id>          grade a session`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	kv, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("Failed to open state store")
	}
	defer kv.Close()

	authMgr := auth.NewManager(kv, log)

	var identity *auth.Identity
	client := api.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout, func() string {
		if identity == nil {
			return ""
		}
		return identity.Token
	}, log)

	command, args := os.Args[1], os.Args[2:]

	switch command {
	case "login":
		if _, err := promptLogin(ctx, authMgr, client); err != nil {
			log.Fatal().Err(err).Msg("Login failed")
		}
		fmt.Println("Credential stored.")
		return
	case "logout":
		if err := authMgr.Logout(ctx); err != nil {
			log.Fatal().Err(err).Msg("Logout failed")
		}
		fmt.Println("Logged out.")
		return
	}

	identity, err = authMgr.Current(ctx)
	if err != nil || identity == nil {
		log.Fatal().Msg("Not logged in; run: admin login")
	}

	if err := run(ctx, client, command, args); err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			log.Fatal().Int("status", apiErr.StatusCode).Str("detail", apiErr.Detail).Msg("Request rejected")
		}
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func run(ctx context.Context, client *api.Client, command string, args []string) error {
	switch command {
	case "tests":
		tests, err := client.ListTests(ctx)
		if err != nil {
			return err
		}
		printTests(tests)
		return nil

	case "active":
		t, err := client.ActiveTest(ctx)
		if err != nil {
			return err
		}
		if t == nil {
			fmt.Println("No active test.")
			return nil
		}
		printTests([]api.Test{*t})
		return nil

	case "create-test":
		fs := flag.NewFlagSet("create-test", flag.ExitOnError)
		title := fs.String("title", "", "test title (required)")
		duration := fs.Int("duration", 0, "duration in minutes (0 = server default)")
		desc := fs.String("desc", "", "description")
		fs.Parse(args)
		if *title == "" {
			return errors.New("-title is required")
		}
		t, err := client.CreateTest(ctx, api.TestCreate{
			Title:           *title,
			DurationMinutes: *duration,
			Description:     *desc,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Created test %d: %s\n", t.ID, t.Title)
		return nil

	case "activate":
		id, err := idArg(args)
		if err != nil {
			return err
		}
		if err := client.ActivateTest(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Test %d activated.\n", id)
		return nil

	case "deactivate":
		id, err := idArg(args)
		if err != nil {
			return err
		}
		if err := client.DeactivateTest(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Test %d deactivated.\n", id)
		return nil

	case "delete-test":
		id, err := idArg(args)
		if err != nil {
			return err
		}
		if err := client.DeleteTest(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Test %d deleted.\n", id)
		return nil

	case "questions":
		id, err := idArg(args)
		if err != nil {
			return err
		}
		questions, err := client.ListQuestions(ctx, id)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTASK\tLINK")
		for _, q := range questions {
			taskID := ""
			if q.TaskID != nil {
				taskID = *q.TaskID
			}
			fmt.Fprintf(w, "%d\t%s\t%s\n", q.ID, taskID, q.Link)
		}
		return w.Flush()

	case "add-question":
		fs := flag.NewFlagSet("add-question", flag.ExitOnError)
		testID := fs.Int64("test", 0, "test id (required)")
		link := fs.String("link", "", "task link (required)")
		taskID := fs.String("task", "", "task identifier")
		desc := fs.String("desc", "", "description")
		fs.Parse(args)
		if *testID == 0 || *link == "" {
			return errors.New("-test and -link are required")
		}
		q, err := client.AddQuestion(ctx, *testID, api.QuestionCreate{
			TaskID:      *taskID,
			Link:        *link,
			Description: *desc,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Added question %d to test %d.\n", q.ID, *testID)
		return nil

	case "delete-question":
		id, err := idArg(args)
		if err != nil {
			return err
		}
		if err := client.DeleteQuestion(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Question %d deleted.\n", id)
		return nil

	case "users":
		users, err := client.ListUsers(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSERNAME\tACTIVE\tADMIN")
		for _, u := range users {
			fmt.Fprintf(w, "%d\t%s\t%t\t%t\n", u.ID, u.Username, u.IsActive, u.IsAdmin)
		}
		return w.Flush()

	case "results":
		id, err := idArg(args)
		if err != nil {
			return err
		}
		results, err := client.TestResults(ctx, id)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tUSER\tCOMPLETED\tSCORE")
		for _, res := range results {
			fmt.Fprintf(w, "%d\t%s\t%t\t%d\n", res.ID, res.Username, res.IsCompleted, res.Score)
		}
		return w.Flush()

	case "report":
		id, err := idArg(args)
		if err != nil {
			return err
		}
		report, err := client.SessionReport(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("Session %d  user=%s  score=%d\n\n", report.SessionID, report.Username, report.Score)
		for i, e := range report.Entries {
			fmt.Printf("%d. %s [%s]", i+1, e.Link, e.Status)
			if e.Grade != "" {
				fmt.Printf(" graded=%s", e.Grade)
			}
			fmt.Println()
			fmt.Printf("   %s\n", e.Explanation)
			if e.CriticalError != "" && e.CriticalError != "None" {
				fmt.Printf("   critical: %s\n", e.CriticalError)
			}
		}
		return nil

	case "evaluate":
		id, err := idArg(args)
		if err != nil {
			return err
		}
		if err := client.StartEvaluation(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Evaluation started for session %d.\n", id)
		return nil

	default:
		usage()
		return nil
	}
}

func idArg(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, errors.New("expected exactly one id argument")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", args[0])
	}
	return id, nil
}

func printTests(tests []api.Test) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tQUESTIONS\tDURATION\tACTIVE")
	for _, t := range tests {
		fmt.Fprintf(w, "%d\t%s\t%d\t%dm\t%t\n", t.ID, t.Title, t.QuestionCount, t.DurationMinutes, t.IsActive)
	}
	w.Flush()
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.KV, error) {
	switch cfg.StoreBackend {
	case "sqlite":
		return store.OpenSQLite(cfg.StatePath)
	case "redis":
		return store.OpenRedis(ctx, cfg.RedisURL, "admin")
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

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

	id, err := mgr.Login(ctx, client, username, string(bytePassword))
	if err != nil {
		return nil, err
	}
	if !id.IsAdmin {
		fmt.Println("Warning: this account is not an admin; most commands will be rejected.")
	}
	return id, nil
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
