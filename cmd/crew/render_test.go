package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xenn00/crew-chat/internal/entity"
	"github.com/xenn00/crew-chat/internal/stream"
	room_service "github.com/xenn00/crew-chat/internal/use-case/room-case"
)

func view(id, author, body string) stream.View {
	return stream.View{Message: entity.Message{
		ID:        id,
		GroupID:   "g1",
		AuthorID:  author,
		Body:      body,
		CreatedAt: time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local),
	}}
}

func TestPrinter_PrintsEachCommittedMessageOnce(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out, "u1")

	p.handle(room_service.Event{Kind: room_service.EventMessages, Messages: []stream.View{view("early", "u2", "dropped")}})
	assert.Empty(t, out.String())

	p.seed(room_service.Snapshot{
		Group:   &entity.Group{Name: "ops"},
		Members: []entity.GroupMember{{UserID: "u2", Profile: &entity.Profile{Username: "kim"}}},
		Messages: []stream.View{
			view("m1", "u2", "morning"),
			view("m2", "", "kim joined"),
		},
		Unread: []string{"m1"},
	})

	pending := view(entity.PendingPrefix+"1", "u1", "on its way")
	pending.Pending = true
	p.handle(room_service.Event{Kind: room_service.EventMessages, Messages: []stream.View{
		view("m1", "u2", "morning"),
		view("m2", "", "kim joined"),
		pending,
	}})
	p.handle(room_service.Event{Kind: room_service.EventMessages, Messages: []stream.View{
		view("m1", "u2", "morning"),
		view("m2", "", "kim joined"),
		view("m3", "u1", "on its way"),
	}})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{
		"== ops (1 members) ==",
		"[09:30] kim: morning",
		"[09:30] -- kim joined",
		"* 1 unread",
		"[09:30] you: on its way",
	}, lines)
}

func TestPrinter_ConnectionAndErrors(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out, "u1")
	p.seed(room_service.Snapshot{})

	p.handle(room_service.Event{Kind: room_service.EventConnection, Connection: room_service.ConnReconnecting})
	p.handle(room_service.Event{Kind: room_service.EventState, State: room_service.StateLive})
	p.handle(room_service.Event{Kind: room_service.EventState, State: room_service.StateClosed})

	assert.Equal(t, "* reconnecting\n* room closed\n", out.String())
}
