package room_service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xenn00/crew-chat/internal/dtos/chat_dto"
	"github.com/xenn00/crew-chat/internal/entity"
	app_error "github.com/xenn00/crew-chat/internal/errors"
	"github.com/xenn00/crew-chat/internal/realtime"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type fakeBackend struct {
	mu       sync.Mutex
	group    entity.Group
	members  []entity.GroupMember
	messages []entity.Message
	reads    map[string]entity.MessageRead
	seq      int

	failEnsure   bool
	failGroup    bool
	failMembers  bool
	failMessages bool
	failSend     bool
	failRead     map[string]bool

	// sendGate, when set, holds SendMessage until it is closed.
	sendGate chan struct{}
	// afterInsert runs after a message is stored, before SendMessage returns.
	afterInsert func(entity.Message)
	sendCalls   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		group:    entity.Group{ID: "g1", Name: "bridge", CreatedBy: "u9", CreatedAt: t0},
		reads:    map[string]entity.MessageRead{},
		failRead: map[string]bool{},
	}
}

func (b *fakeBackend) seedMessage(id, author string, offset time.Duration) entity.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := entity.Message{ID: id, GroupID: "g1", AuthorID: author, Body: "body " + id, CreatedAt: t0.Add(offset)}
	b.messages = append(b.messages, m)
	return m
}

func (b *fakeBackend) seedRead(messageID, userID string, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reads[messageID+"|"+userID] = entity.MessageRead{ID: "r-" + messageID + userID, MessageID: messageID, UserID: userID, GroupID: "g1", ReadAt: at}
}

func (b *fakeBackend) readers(messageID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, r := range b.reads {
		if r.MessageID == messageID {
			out = append(out, r.UserID)
		}
	}
	sort.Strings(out)
	return out
}

func (b *fakeBackend) readCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.reads)
}

func (b *fakeBackend) setFailRead(id string, fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failRead[id] = fail
}

func (b *fakeBackend) EnsureMembership(_ context.Context, groupID, userID string) (*entity.GroupMember, *app_error.AppError) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failEnsure {
		return nil, app_error.Internal("insert member failed", "db-error")
	}
	for _, m := range b.members {
		if m.UserID == userID {
			return &m, nil
		}
	}
	m := entity.GroupMember{ID: "gm-" + userID, GroupID: groupID, UserID: userID, Role: entity.RoleMember}
	b.members = append(b.members, m)
	return &m, nil
}

func (b *fakeBackend) GetGroup(_ context.Context, groupID string) (*entity.Group, *app_error.AppError) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failGroup || groupID != b.group.ID {
		return nil, app_error.NotFound("group not found", "not-found")
	}
	g := b.group
	return &g, nil
}

func (b *fakeBackend) ListMembers(context.Context, string) ([]entity.GroupMember, *app_error.AppError) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failMembers {
		return nil, app_error.Internal("roster unavailable", "db-error")
	}
	return append([]entity.GroupMember(nil), b.members...), nil
}

func (b *fakeBackend) ListMessages(context.Context, string) ([]entity.Message, *app_error.AppError) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failMessages {
		return nil, app_error.Internal("history unavailable", "db-error")
	}
	out := append([]entity.Message(nil), b.messages...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (b *fakeBackend) ListReads(_ context.Context, ids []string) ([]entity.MessageRead, *app_error.AppError) {
	b.mu.Lock()
	defer b.mu.Unlock()
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []entity.MessageRead
	for _, r := range b.reads {
		if want[r.MessageID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (b *fakeBackend) SendMessage(ctx context.Context, req chat_dto.SendMessageRequest) (*entity.Message, *app_error.AppError) {
	b.mu.Lock()
	b.sendCalls++
	gate := b.sendGate
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, app_error.Internal("send timed out", "timeout")
		}
	}

	b.mu.Lock()
	if b.failSend {
		b.mu.Unlock()
		return nil, app_error.Internal("insert failed", "db-error")
	}
	b.seq++
	m := entity.Message{
		ID:        fmt.Sprintf("srv-%d", b.seq),
		GroupID:   req.GroupID,
		AuthorID:  req.AuthorID,
		ClientID:  req.ClientID,
		Body:      req.Body,
		CreatedAt: t0.Add(time.Hour + time.Duration(b.seq)*time.Second),
	}
	b.messages = append(b.messages, m)
	hook := b.afterInsert
	b.mu.Unlock()

	if hook != nil {
		hook(m)
	}
	return &m, nil
}

func (b *fakeBackend) UpsertRead(_ context.Context, r entity.MessageRead) *app_error.AppError {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failRead[r.MessageID] {
		return app_error.Internal("upsert failed", "db-error")
	}
	b.reads[r.MessageID+"|"+r.UserID] = r
	return nil
}

type fakeSub struct {
	mu     sync.Mutex
	closed bool
	events chan realtime.ChangeEvent
	status chan realtime.Status
}

func (s *fakeSub) Events() <-chan realtime.ChangeEvent { return s.events }
func (s *fakeSub) Status() <-chan realtime.Status      { return s.status }

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
		close(s.status)
	}
	return nil
}

func (s *fakeSub) push(ev realtime.ChangeEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.events <- ev
	return true
}

func (s *fakeSub) report(st realtime.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.status <- st
	}
}

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeFeed struct {
	mu       sync.Mutex
	subs     []*fakeSub
	tags     []string
	failNext int
	// autoAck reports SUBSCRIBED on every new subscription.
	autoAck bool
}

func (f *fakeFeed) Subscribe(_ context.Context, groupID, tag string) (realtime.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags = append(f.tags, tag)
	if f.failNext > 0 {
		f.failNext--
		return nil, errors.New("feed unavailable")
	}
	sub := &fakeSub{
		events: make(chan realtime.ChangeEvent, 64),
		status: make(chan realtime.Status, 8),
	}
	if f.autoAck {
		sub.status <- realtime.StatusSubscribed
	}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeFeed) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tags)
}

func (f *fakeFeed) current() *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) has(kind EventKind, match func(Event) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Kind == kind && (match == nil || match(ev)) {
			return true
		}
	}
	return false
}

// lockedBuffer lets session and tracker goroutines log into one buffer.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
