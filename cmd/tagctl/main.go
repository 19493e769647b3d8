// Command tagctl drives the session API from a terminal: create a join
// session, join one as a participant, or watch one until interrupted.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/christopherjohns/blanc/internal/logging"
	"github.com/christopherjohns/blanc/internal/session"
	"github.com/christopherjohns/blanc/internal/sessionclient"
)

const usage = `usage: tagctl [flags] <command> [args]

commands:
  create <creator> [session-id]   start a join session
  join <session-id> <participant> add a participant
  get <session-id>                print a session
  watch <session-id>              print the session every poll until interrupted

flags:
`

func main() {
	fs := flag.NewFlagSet("tagctl", flag.ExitOnError)
	addr := fs.String("addr", envOr("BLANC_ADDR", "http://localhost:8080"), "session API base URL")
	interval := fs.Duration("interval", sessionclient.DefaultInterval, "poll interval for watch")
	level := fs.String("log-level", "warn", "log level")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])

	log := logging.Setup(os.Stderr, *level, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := sessionclient.New(*addr, nil)
	if err := run(ctx, client, *interval, fs.Args()); err != nil {
		log.Error("command failed", logging.Err(err))
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func run(ctx context.Context, client *sessionclient.Client, interval time.Duration, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command")
	}
	cmd, args := args[0], args[1:]

	switch cmd {
	case "create":
		if len(args) < 1 {
			return fmt.Errorf("create: creator required")
		}
		id := ""
		if len(args) > 1 {
			id = args[1]
		}
		got, err := client.CreateSession(ctx, id, args[0])
		if err != nil {
			return err
		}
		fmt.Println(got)
		return nil

	case "join":
		if len(args) != 2 {
			return fmt.Errorf("join: session id and participant required")
		}
		res, err := client.AddParticipant(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(res)

	case "get":
		if len(args) != 1 {
			return fmt.Errorf("get: session id required")
		}
		sess, err := client.GetSession(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(sess)

	case "watch":
		if len(args) != 1 {
			return fmt.Errorf("watch: session id required")
		}
		poller := sessionclient.NewPoller(client, interval, nil)
		var (
			seen    string
			printed bool
		)
		unsubscribe := poller.Subscribe(args[0], func(s *session.Session) {
			line := strings.Join(s.Participants, ", ")
			if printed && line == seen {
				return
			}
			seen, printed = line, true
			fmt.Printf("%s participants (%d): %s\n", time.Now().Format(time.TimeOnly), len(s.Participants), line)
		})
		defer unsubscribe()
		poller.PollOnce(ctx)
		if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
