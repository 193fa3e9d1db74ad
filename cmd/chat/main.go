// letterpet terminal chat client.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/letterpet/client-go/internal/config"
	"github.com/letterpet/client-go/internal/directory"
	"github.com/letterpet/client-go/internal/session"
	"github.com/letterpet/client-go/internal/store"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	userFlag := flag.String("user", "", "identity to connect as (overrides CHAT_USERNAME)")
	flag.Parse()

	username := *userFlag
	if username == "" {
		username = cfg.Username
	}
	if username == "" {
		fmt.Fprintln(os.Stderr, "usage: chat -user <username>")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := store.New()
	dir := directory.NewHTTPClient(cfg.DirectoryURL, logger)
	mgr := session.New(session.Config{
		SocketURL:      cfg.SocketURL,
		ReconnectDelay: cfg.ReconnectDelay,
	}, dir, st, logger)

	mgr.Start(ctx, username)
	fmt.Printf("connected as %s (server %s)\n", username, cfg.DirectoryURL)

	go printNotices(ctx, mgr)
	go printIncoming(ctx, st)

	runPrompt(ctx, mgr, st)
	mgr.Disconnect()
}

func printNotices(ctx context.Context, mgr *session.Manager) {
	for {
		select {
		case notice := <-mgr.Notices():
			fmt.Printf("! %s\n", notice)
		case <-ctx.Done():
			return
		}
	}
}

// printIncoming echoes the newest message whenever the head of the
// message list changes.
func printIncoming(ctx context.Context, st *store.Store) {
	var last store.State
	for {
		select {
		case <-st.Changes():
		case <-ctx.Done():
			return
		}
		snap := st.Snapshot()
		if len(snap.Messages) > 0 && (len(last.Messages) == 0 || snap.Messages[0] != last.Messages[0]) {
			m := snap.Messages[0]
			fmt.Printf("[%s] %s: %s\n", m.Timestamp.Format("15:04:05"), m.Username, m.Text)
		}
		last = snap
	}
}

//nolint:gocognit // Command dispatch is a flat switch over the prompt verbs.
func runPrompt(ctx context.Context, mgr *session.Manager, st *store.Store) {
	var currentChat string
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("commands: /chats /open /create /delete /members /invite /kick /quit")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "/quit":
			return
		case "/chats":
			for _, c := range st.Snapshot().Chats {
				kind := "direct"
				if c.IsGroup {
					kind = "group"
				}
				fmt.Printf("  %s  %s (%s, by %s)\n", c.ID, c.Name, kind, c.CreatedBy)
			}
		case "/open":
			if len(fields) < 2 {
				fmt.Println("usage: /open <chatID>")
				continue
			}
			currentChat = fields[1]
			msgs := st.Snapshot().MessagesFor(currentChat)
			for i := len(msgs) - 1; i >= 0; i-- {
				m := msgs[i]
				fmt.Printf("[%s] %s: %s\n", m.Timestamp.Format("15:04:05"), m.Username, m.Text)
			}
		case "/create":
			if len(fields) < 2 {
				fmt.Println("usage: /create <name> [group]")
				continue
			}
			isGroup := len(fields) > 2 && fields[2] == "group"
			mgr.CreateChat(ctx, fields[1], isGroup)
		case "/delete":
			if len(fields) < 2 {
				fmt.Println("usage: /delete <chatID>")
				continue
			}
			mgr.DeleteChat(ctx, fields[1])
		case "/members":
			if len(fields) < 2 {
				fmt.Println("usage: /members <chatID>")
				continue
			}
			mgr.LoadMembers(ctx, fields[1])
			for _, m := range st.Snapshot().Members[fields[1]] {
				fmt.Printf("  %s\n", m)
			}
		case "/invite":
			if len(fields) < 3 {
				fmt.Println("usage: /invite <username> <chatID>")
				continue
			}
			mgr.AddMember(ctx, fields[1], fields[2])
		case "/kick":
			if len(fields) < 3 {
				fmt.Println("usage: /kick <username> <chatID>")
				continue
			}
			mgr.RemoveMember(ctx, fields[1], fields[2])
		default:
			if currentChat == "" {
				fmt.Println("no chat open; use /open <chatID> first")
				continue
			}
			mgr.UpdateDraft(line)
			mgr.Send(ctx, currentChat)
		}
	}
}
