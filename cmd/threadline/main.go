// ABOUTME: Entry point for the threadline demo binary
// ABOUTME: Seeds a conversation and prints the merged, day-segmented timeline

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/2389/threadline/internal/config"
	"github.com/2389/threadline/internal/message"
	"github.com/2389/threadline/internal/poll"
	"github.com/2389/threadline/internal/presence"
	"github.com/2389/threadline/internal/profile"
	"github.com/2389/threadline/internal/store"
	"github.com/2389/threadline/internal/timeline"
)

// version is set by goreleaser at build time.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to threadline.yaml (defaults apply when empty)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("threadline", version)
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "config:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("demo failed", "error", err)
		os.Exit(1)
	}
}

// run seeds a two-user conversation in a scratch database, drives the
// controllers through sends, a poll and votes, then renders the timeline.
func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dir, err := os.MkdirTemp("", "threadline-demo-")
	if err != nil {
		return fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.NewSQLiteStore(filepath.Join(dir, cfg.Database.Path), logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	const conversationID = "demo"
	const alice, bob = "alice", "bob"

	for _, p := range []*store.Profile{
		{ID: alice, Username: "Alice"},
		{ID: bob, Username: "Bob"},
	} {
		if err := st.PutProfile(ctx, p); err != nil {
			return err
		}
	}

	// Yesterday's half of the conversation, inserted directly so the day
	// segmentation has two days to split.
	yesterday := time.Now().Add(-24 * time.Hour)
	for i, seed := range []struct {
		sender, name, content string
	}{
		{alice, "Alice", "Are we still on for tomorrow?"},
		{bob, "Bob", "Yes! Bringing snacks."},
	} {
		msg := &store.Message{
			ID:             st.NewID(),
			ConversationID: conversationID,
			SenderID:       seed.sender,
			SenderName:     seed.name,
			Content:        seed.content,
			Type:           store.MessageTypeText,
			Timestamp:      yesterday.Add(time.Duration(i) * time.Minute),
		}
		if err := st.Add(ctx, msg); err != nil {
			return err
		}
	}

	resolver := profile.NewResolver(st, logger)
	messages := message.NewController(st, resolver, logger)
	polls := poll.NewController(st, st, resolver, cfg.PollLimits(), logger)
	online := presence.NewAggregator(st, logger)

	if err := messages.Init(ctx, conversationID, alice); err != nil {
		return err
	}
	defer messages.Close()
	if err := polls.Init(ctx, conversationID, alice); err != nil {
		return err
	}
	defer polls.Close()
	if err := online.Init(ctx, conversationID, alice); err != nil {
		return err
	}
	defer online.Close()

	if err := st.SetOnline(ctx, conversationID, bob); err != nil {
		return err
	}

	if err := messages.Send(ctx, "Morning! Quick question for everyone.", "Alice", store.MessageTypeText); err != nil {
		return err
	}

	polls.SetQuestion("Where should we meet?")
	polls.SetOption(0, "The park")
	polls.SetOption(1, "The cafe")
	if err := polls.CreatePoll(ctx, "Alice"); err != nil {
		return err
	}

	// Wait for the poll snapshot so the vote sees it.
	if err := waitFor(ctx, func() bool { return len(polls.State().Polls) == 1 }); err != nil {
		return fmt.Errorf("waiting for poll snapshot: %w", err)
	}
	pollID := polls.State().Polls[0].ID
	if err := polls.Vote(ctx, pollID, 1); err != nil {
		return err
	}
	if err := st.Vote(ctx, conversationID, pollID, 0, bob); err != nil {
		return err
	}

	if err := waitFor(ctx, func() bool {
		return len(messages.State().Messages) == 4 && !messages.State().Loading
	}); err != nil {
		return fmt.Errorf("waiting for message snapshot: %w", err)
	}

	render(messages.State(), polls.State(), online.Snapshot())
	return nil
}

// waitFor polls cond until it holds or ctx expires.
func waitFor(ctx context.Context, cond func() bool) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if cond() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// render prints the merged, segmented timeline with colored day headers.
func render(msgState message.State, pollState poll.State, online presence.Snapshot) {
	entries := timeline.Merge(msgState.Messages, pollState.Polls)
	entries = timeline.Segment(entries, time.Local)
	now := time.Now()

	header := color.New(color.FgHiBlack, color.Bold)
	name := color.New(color.FgCyan)
	pollColor := color.New(color.FgYellow)

	fmt.Printf("conversation %s — %d online, %d unread\n\n",
		msgState.ConversationID, online.Count, msgState.UnreadCount())

	for _, e := range entries {
		switch e.Kind {
		case timeline.EntryDayMarker:
			header.Printf("── %s ──\n", timeline.DayLabel(e.Timestamp, now))
		case timeline.EntryMessage:
			sender := e.Message.SenderName
			if p, ok := msgState.Profiles[e.Message.SenderID]; ok {
				sender = p.Username
			}
			fmt.Printf("%s %s: %s\n",
				e.Timestamp.Format("15:04"), name.Sprint(sender), e.Message.Content)
		case timeline.EntryPoll:
			p := e.Poll
			fmt.Printf("%s %s\n", e.Timestamp.Format("15:04"), pollColor.Sprintf("POLL %s", p.Question))
			for _, opt := range p.Options {
				fmt.Printf("        [%d] %s (%d vote%s)\n",
					opt.ID, opt.Text, len(opt.Voters), plural(len(opt.Voters)))
			}
		}
	}
	fmt.Println()
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
