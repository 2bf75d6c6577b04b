package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/nutria-agent/internal/adapters/cache"
	"github.com/PabloGalante/nutria-agent/internal/adapters/device"
	"github.com/PabloGalante/nutria-agent/internal/app/conversation"
	"github.com/PabloGalante/nutria-agent/internal/app/session"
	"github.com/PabloGalante/nutria-agent/internal/config"
	"github.com/PabloGalante/nutria-agent/internal/domain"
	"github.com/PabloGalante/nutria-agent/internal/observability"
)

var (
	chatUser         string
	chatConversation string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with Nutria in the terminal",
	Long: `Chat with Nutria in the terminal. Replies are typed out as they arrive.

Commands:
  /confirm [id]    run the pending proposal (the latest one by default)
  /cancel [id]     decline the pending proposal
  /record <file>   transcribe an audio file into the composer
  /image <path>    describe a photo (file or URL) into the composer
  /history         list saved conversations
  /load <id>       continue a saved conversation
  /new             start over
  /delete <id>     delete a saved conversation
  /quit            exit (pending changes are saved first)

An empty line sends whatever the composer holds.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatUser, "user", "local", "user id to chat as")
	chatCmd.Flags().StringVar(&chatConversation, "conversation", "", "saved conversation to resume")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// logs go to stderr so they don't interleave with the conversation
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	if cfg.LogLevel == "debug" {
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	observability.SetLogger(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	views := newFeed()
	a, err := buildApp(ctx, cfg, logger, views.push)
	if err != nil {
		return err
	}
	defer a.shutdown(context.Background())

	if a.memCache != nil {
		a.memCache.Subscribe(func(inv cache.Invalidation) {
			logger.Debug("cache invalidated", "keys", inv.Keys)
		})
	}

	out := cmd.OutOrStdout()
	r := newRenderer(out)
	go views.run(ctx, r.render)

	view, err := a.svc.StartSession(ctx, conversation.StartSessionInput{
		UserID:         domain.UserID(chatUser),
		ConversationID: domain.ConversationID(chatConversation),
	})
	if err != nil {
		return err
	}
	r.render(view)

	c := &chat{
		svc:  a.svc,
		sid:  view.SessionID,
		user: domain.UserID(chatUser),
		mic:  device.NewFileMicrophone(""),
		out:  out,
	}
	return c.loop(ctx, cmd.InOrStdin())
}

type chat struct {
	svc  *conversation.Service
	sid  domain.SessionID
	user domain.UserID
	mic  *device.FileMicrophone
	out  io.Writer
}

func (c *chat) loop(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := c.handle(ctx, strings.TrimSpace(line))
			if err != nil {
				fmt.Fprintf(c.out, "! %s\n", describeErr(err))
			}
			if quit {
				return nil
			}
		}
	}
}

func (c *chat) handle(ctx context.Context, line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		if line == "" {
			v, err := c.svc.Snapshot(ctx, c.sid, c.user)
			if err != nil || (v.Composer == "" && !v.ComposerImage) {
				return false, err
			}
		}
		_, err := c.svc.Send(ctx, conversation.SendInput{SessionID: c.sid, UserID: c.user, Text: line})
		return false, err
	}

	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
	}

	switch fields[0] {
	case "/quit", "/exit":
		return true, nil

	case "/confirm", "/cancel":
		id, err := c.proposal(ctx, arg)
		if err != nil {
			return false, err
		}
		if fields[0] == "/confirm" {
			return false, c.svc.Confirm(ctx, c.sid, c.user, id)
		}
		return false, c.svc.Cancel(ctx, c.sid, c.user, id)

	case "/record":
		if arg == "" {
			return false, fmt.Errorf("usage: /record <audio file>")
		}
		c.mic.SetPath(arg)
		text, err := c.svc.Record(ctx, c.sid, c.user, c.mic)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "heard: %q (Enter to send)\n", text)

	case "/image":
		if arg == "" {
			return false, fmt.Errorf("usage: /image <file or URL>")
		}
		ref, err := imageRef(arg)
		if err != nil {
			return false, err
		}
		text, err := c.svc.AttachImage(ctx, c.sid, c.user, ref)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "seen: %q (Enter to send)\n", text)

	case "/history":
		list, err := c.svc.ListConversations(ctx, c.user)
		if err != nil {
			return false, err
		}
		if len(list) == 0 {
			fmt.Fprintln(c.out, "no saved conversations")
		}
		for _, s := range list {
			fmt.Fprintf(c.out, "  %s  %s (%d messages, %s)\n", s.ID, s.Title, s.MessageCount, s.UpdatedAt.Local().Format("Jan 2 15:04"))
		}

	case "/load":
		if arg == "" {
			return false, fmt.Errorf("usage: /load <conversation id>")
		}
		return false, c.svc.LoadConversation(ctx, c.sid, c.user, domain.ConversationID(arg))

	case "/new":
		return false, c.svc.NewConversation(ctx, c.sid, c.user)

	case "/delete":
		if arg == "" {
			return false, fmt.Errorf("usage: /delete <conversation id>")
		}
		if err := c.svc.DeleteConversation(ctx, c.user, domain.ConversationID(arg)); err != nil {
			return false, err
		}
		fmt.Fprintln(c.out, "deleted")

	case "/help":
		fmt.Fprintln(c.out, "/confirm /cancel /record <file> /image <path> /history /load <id> /new /delete <id> /quit")

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", fields[0])
	}
	return false, nil
}

// proposal resolves the message a /confirm or /cancel refers to: the given
// id, or the latest proposal still waiting for an answer.
func (c *chat) proposal(ctx context.Context, arg string) (domain.MessageID, error) {
	if arg != "" {
		return domain.MessageID(arg), nil
	}
	v, err := c.svc.Snapshot(ctx, c.sid, c.user)
	if err != nil {
		return "", err
	}
	for i := len(v.Messages) - 1; i >= 0; i-- {
		if v.Messages[i].Status == session.StatusProposedNeedsConfirm.String() {
			return v.Messages[i].ID, nil
		}
	}
	return "", fmt.Errorf("nothing is waiting for confirmation")
}

func imageRef(arg string) (domain.ImageRef, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") || strings.HasPrefix(arg, "gs://") {
		return domain.ImageRef{URL: arg, MIMEType: mime.TypeByExtension(filepath.Ext(arg))}, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return domain.ImageRef{}, fmt.Errorf("read image: %w", err)
	}
	return domain.ImageRef{Data: data, MIMEType: mime.TypeByExtension(strings.ToLower(filepath.Ext(arg)))}, nil
}

func describeErr(err error) string {
	if msg := domain.UserMessage(err, ""); msg != "" {
		return msg
	}
	if domain.GetCode(err) == domain.CodeBusy {
		return "still working on the last message"
	}
	return err.Error()
}
