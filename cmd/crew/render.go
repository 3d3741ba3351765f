package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/xenn00/crew-chat/internal/entity"
	"github.com/xenn00/crew-chat/internal/stream"
	room_service "github.com/xenn00/crew-chat/internal/use-case/room-case"
)

const timeLayout = "15:04"

// printer renders session events as plain lines. Pending sends are not printed; the row is
// printed once the store confirms it.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	self    string
	ready   bool
	names   map[string]string
	printed map[string]struct{}
}

func newPrinter(out io.Writer, self string) *printer {
	return &printer{
		out:     out,
		self:    self,
		names:   make(map[string]string),
		printed: make(map[string]struct{}),
	}
}

// seed prints the room header and history; events before seed are dropped.
func (p *printer) seed(snap room_service.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, m := range snap.Members {
		if m.Profile != nil && m.Profile.Username != "" {
			p.names[m.UserID] = m.Profile.Username
		}
	}

	if snap.Group != nil {
		fmt.Fprintf(p.out, "== %s (%d members) ==\n", snap.Group.Name, len(snap.Members))
	}
	p.ready = true
	p.printViews(snap.Messages)
	if n := len(snap.Unread); n > 0 {
		fmt.Fprintf(p.out, "* %d unread\n", n)
	}
}

func (p *printer) handle(ev room_service.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ready {
		return
	}

	switch ev.Kind {
	case room_service.EventMessages:
		p.printViews(ev.Messages)
	case room_service.EventConnection:
		fmt.Fprintf(p.out, "* %s\n", ev.Connection)
	case room_service.EventState:
		if ev.State != room_service.StateLive {
			fmt.Fprintf(p.out, "* room %s\n", ev.State)
		}
	case room_service.EventError:
		if ev.Err != nil {
			fmt.Fprintf(p.out, "! %s\n", ev.Err.Message)
		}
	}
}

func (p *printer) notice(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) printViews(views []stream.View) {
	for _, v := range views {
		if v.Pending {
			continue
		}
		if _, ok := p.printed[v.Message.ID]; ok {
			continue
		}
		p.printed[v.Message.ID] = struct{}{}
		fmt.Fprintln(p.out, p.line(v.Message))
	}
}

func (p *printer) line(m entity.Message) string {
	ts := m.CreatedAt.Local().Format(timeLayout)
	switch {
	case m.AuthorID == "":
		return fmt.Sprintf("[%s] -- %s", ts, m.Body)
	case m.AuthorID == p.self:
		return fmt.Sprintf("[%s] you: %s", ts, m.Body)
	}
	return fmt.Sprintf("[%s] %s: %s", ts, p.name(m.AuthorID), m.Body)
}

func (p *printer) name(userID string) string {
	if n, ok := p.names[userID]; ok {
		return n
	}
	return userID
}
