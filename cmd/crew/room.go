package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/xenn00/crew-chat/config"
	"github.com/xenn00/crew-chat/internal/realtime"
	room_service "github.com/xenn00/crew-chat/internal/use-case/room-case"
)

const stopTimeout = 5 * time.Second

var roomCmd = &cobra.Command{
	Use:   "room <groupID>",
	Short: "Join a room and chat from the terminal",
	Long: `Join a group room, print its history, then follow it live.

Every line typed is sent as a message. Commands:
  /read   mark every unread message read
  /seen   show who has read the latest message
  /retry  resend the draft kept after a failed send
  /esc    discard the current draft
  /quit   leave the room`,
	Args: cobra.ExactArgs(1),
	RunE: runRoom,
}

func contextWithCancel(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func runRoom(cmd *cobra.Command, args []string) error {
	ctx, cancel := contextWithCancel(cmd)
	defer cancel()

	app, service, err := openBackend(ctx, cancel)
	if err != nil {
		return err
	}
	defer app.Close()

	p := newPrinter(cmd.OutOrStdout(), userID)
	session := room_service.NewSession(service, realtime.NewRedisFeed(app.Redis), args[0], userID,
		room_service.WithConfig(config.Conf.ROOM),
		room_service.WithListener(p.handle),
	)

	if appErr := session.Start(ctx); appErr != nil {
		return appErr
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
		defer stopCancel()
		session.Stop(stopCtx)
	}()

	p.seed(session.Snapshot())
	return readLoop(ctx, cmd.InOrStdin(), session, p)
}

func readLoop(ctx context.Context, in io.Reader, session *room_service.Session, p *printer) error {
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
			if !ok || handleLine(ctx, session, p, line) {
				return nil
			}
		}
	}
}

// handleLine runs one line of input and reports whether the user asked to leave.
func handleLine(ctx context.Context, session *room_service.Session, p *printer, line string) bool {
	switch strings.TrimSpace(line) {
	case "":
		return false
	case "/quit":
		return true
	case "/esc":
		session.ClearInput()
	case "/read":
		if failed := session.MarkAllRead(ctx); len(failed) > 0 {
			p.notice("! %d messages could not be marked read", len(failed))
		}
	case "/seen":
		p.seen(session)
	case "/retry":
		if session.Input() == "" {
			p.notice("* nothing to resend")
			return false
		}
		send(ctx, session, p)
	default:
		session.SetInput(line)
		send(ctx, session, p)
	}
	return false
}

func send(ctx context.Context, session *room_service.Session, p *printer) {
	if appErr := session.Send(ctx); appErr != nil {
		p.notice("! send failed: %s (/retry or /esc)", appErr.Message)
	}
}

func (p *printer) seen(session *room_service.Session) {
	snap := session.Snapshot()
	for i := len(snap.Messages) - 1; i >= 0; i-- {
		v := snap.Messages[i]
		if v.Pending {
			continue
		}
		sum, ok := session.ReceiptSummary(v.Message.ID)
		if !ok {
			return
		}
		line := fmt.Sprintf("* seen by %d/%d (%d%%)", sum.ReadCount, sum.Total, sum.Percent)
		if sum.AllRead {
			line += ", everyone"
		}
		p.notice("%s", line)
		return
	}
	p.notice("* no messages yet")
}
