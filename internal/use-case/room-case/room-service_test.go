package room_service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xenn00/crew-chat/config"
	"github.com/xenn00/crew-chat/internal/entity"
	app_error "github.com/xenn00/crew-chat/internal/errors"
	"github.com/xenn00/crew-chat/internal/realtime"
	"github.com/xenn00/crew-chat/internal/receipt"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

func testConfig() config.RoomConfig {
	cfg := config.DefaultRoomConfig()
	cfg.ReadDebounce = 20 * time.Millisecond
	cfg.InitialReadDelay = time.Hour
	cfg.ResubscribeDelay = 30 * time.Millisecond
	cfg.IncomingPulse = 150 * time.Millisecond
	cfg.SentStatusClear = 150 * time.Millisecond
	cfg.ErrorStatusClear = 150 * time.Millisecond
	cfg.RequestTimeout = time.Second
	return cfg
}

type harness struct {
	s       *Session
	backend *fakeBackend
	feed    *fakeFeed
	rec     *recorder
}

func newHarness(t *testing.T, backend *fakeBackend, mutate ...func(*config.RoomConfig)) *harness {
	t.Helper()
	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}
	h := &harness{backend: backend, feed: &fakeFeed{autoAck: true}, rec: &recorder{}}
	h.s = NewSession(backend, h.feed, "g1", "u1", WithConfig(cfg), WithListener(h.rec.listen))
	t.Cleanup(func() { h.s.Stop(context.Background()) })
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.Nil(t, h.s.Start(context.Background()))
}

func messageIDs(snap Snapshot) []string {
	ids := make([]string, 0, len(snap.Messages))
	for _, v := range snap.Messages {
		ids = append(ids, v.Message.ID)
	}
	return ids
}

func seedHistory(b *fakeBackend) {
	b.seedMessage("m1", "u2", 0)
	b.seedMessage("m2", "u1", time.Second)
	b.seedMessage("m3", "u3", 2*time.Second)
	b.seedMessage("m4", "u2", 3*time.Second)
	b.seedRead("m1", "u1", t0.Add(5*time.Second))
	b.seedRead("m3", "u2", t0.Add(6*time.Second))
}

func notAtBottom() receipt.Viewport {
	return receipt.Viewport{ScrollTop: 0, ScrollHeight: 5000, ClientHeight: 400, ContainerBottom: 400}
}

func atBottom() receipt.Viewport {
	return receipt.Viewport{ScrollTop: 4600, ScrollHeight: 5000, ClientHeight: 400, ContainerBottom: 400}
}

func TestSession_StartLoadsHistoryAndUnreadSet(t *testing.T) {
	b := newFakeBackend()
	seedHistory(b)
	h := newHarness(t, b)
	h.start(t)

	snap := h.s.Snapshot()
	assert.Equal(t, StateLive, snap.State)
	require.NotNil(t, snap.Group)
	assert.Equal(t, "bridge", snap.Group.Name)
	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, messageIDs(snap))
	assert.Equal(t, []string{"m3", "m4"}, snap.Unread)
	assert.Equal(t, "m1", snap.LastRead)

	require.Len(t, snap.Members, 1)
	assert.Equal(t, "u1", snap.Members[0].UserID)

	assert.Equal(t, []string{realtime.SubscriptionTag("g1", "u1")}, h.feed.tags)
	require.Eventually(t, func() bool { return h.s.Snapshot().Connection == ConnConnected }, waitFor, tick)
	assert.True(t, h.rec.has(EventState, func(e Event) bool { return e.State == StateLive }))
}

func TestSession_InitialReadPassMarksHistory(t *testing.T) {
	b := newFakeBackend()
	seedHistory(b)
	h := newHarness(t, b, func(c *config.RoomConfig) { c.InitialReadDelay = 20 * time.Millisecond })
	h.start(t)

	require.Eventually(t, func() bool { return len(h.s.Snapshot().Unread) == 0 }, waitFor, tick)
	assert.Equal(t, []string{"u1", "u2"}, b.readers("m3"))
	assert.Equal(t, []string{"u1"}, b.readers("m4"))
	assert.Empty(t, b.readers("m2"), "own messages are never marked")
}

func TestSession_FatalBootstrapFailures(t *testing.T) {
	cases := map[string]func(*fakeBackend){
		"membership": func(b *fakeBackend) { b.failEnsure = true },
		"group":      func(b *fakeBackend) { b.failGroup = true },
		"history":    func(b *fakeBackend) { b.failMessages = true },
	}

	for name, breakIt := range cases {
		t.Run(name, func(t *testing.T) {
			b := newFakeBackend()
			breakIt(b)
			h := newHarness(t, b)

			err := h.s.Start(context.Background())
			require.NotNil(t, err)
			assert.True(t, err.IsFatal())

			snap := h.s.Snapshot()
			assert.Equal(t, StateError, snap.State)
			assert.NotNil(t, snap.Err)
			assert.Zero(t, h.feed.attempts(), "no subscription after a fatal step")
			assert.True(t, h.rec.has(EventError, func(e Event) bool { return e.Err.Kind == app_error.KindFatal }))
		})
	}
}

func TestSession_RosterFailureDegrades(t *testing.T) {
	b := newFakeBackend()
	b.failMembers = true
	seedHistory(b)
	h := newHarness(t, b)
	h.start(t)

	snap := h.s.Snapshot()
	assert.Equal(t, StateLive, snap.State)
	assert.Empty(t, snap.Members)
	assert.Len(t, snap.Messages, 4)
	assert.True(t, h.rec.has(EventError, func(e Event) bool { return e.Err.Kind == app_error.KindDegraded }))
}

func TestSession_StartTwice(t *testing.T) {
	h := newHarness(t, newFakeBackend())
	h.start(t)
	assert.NotNil(t, h.s.Start(context.Background()))
}

func TestSession_SendShowsPendingThenCommits(t *testing.T) {
	b := newFakeBackend()
	b.sendGate = make(chan struct{})
	h := newHarness(t, b)
	h.start(t)

	h.s.SetInput("  hello crew  ")
	done := make(chan *app_error.AppError, 1)
	go func() { done <- h.s.Send(context.Background()) }()

	require.Eventually(t, func() bool {
		snap := h.s.Snapshot()
		return len(snap.Messages) == 1 && snap.Messages[0].Pending
	}, waitFor, tick)
	snap := h.s.Snapshot()
	assert.Equal(t, "hello crew", snap.Messages[0].Message.Body)
	assert.Empty(t, snap.Input)
	assert.Equal(t, SendSending, snap.SendStatus)

	close(b.sendGate)
	require.Nil(t, <-done)

	snap = h.s.Snapshot()
	assert.Equal(t, []string{"srv-1"}, messageIDs(snap))
	assert.False(t, snap.Messages[0].Pending)
	assert.Equal(t, SendSent, snap.SendStatus)
	require.Eventually(t, func() bool { return h.s.Snapshot().SendStatus == SendIdle }, waitFor, tick)
}

func TestSession_SendEchoBeforeResponseIsNotDuplicated(t *testing.T) {
	b := newFakeBackend()
	seedHistory(b)
	h := newHarness(t, b)
	h.start(t)

	b.afterInsert = func(m entity.Message) {
		h.feed.current().push(realtime.MessageInserted(m))
		require.Eventually(t, func() bool { return h.s.stream.Has(m.ID) }, waitFor, tick)
	}

	for _, body := range []string{"one", "two", "three"} {
		h.s.SetInput(body)
		require.Nil(t, h.s.Send(context.Background()))
	}

	// a duplicate delivery of an already merged row changes nothing
	h.feed.current().push(realtime.MessageInserted(b.messages[len(b.messages)-1]))
	h.feed.current().push(realtime.MessageInserted(entity.Message{ID: "o1", GroupID: "g1", AuthorID: "u2", CreatedAt: t0.Add(2 * time.Hour)}))
	require.Eventually(t, func() bool { return h.s.stream.Has("o1") }, waitFor, tick)

	snap := h.s.Snapshot()
	assert.Equal(t, []string{"m1", "m2", "m3", "m4", "srv-1", "srv-2", "srv-3", "o1"}, messageIDs(snap))
	for _, v := range snap.Messages {
		assert.False(t, v.Pending)
	}
	assert.Equal(t, h.s.stream.Len(), h.s.stream.CommittedLen())
}

func TestSession_SendFailureRollsBack(t *testing.T) {
	b := newFakeBackend()
	b.failSend = true
	b.seedMessage("m1", "u2", 0)
	b.seedRead("m1", "u1", t0)
	h := newHarness(t, b)
	h.start(t)

	h.s.SetInput("hello")
	err := h.s.Send(context.Background())
	require.NotNil(t, err)
	assert.Equal(t, app_error.KindItem, err.Kind)

	snap := h.s.Snapshot()
	assert.Equal(t, "hello", snap.Input)
	assert.Equal(t, []string{"m1"}, messageIDs(snap))
	assert.Equal(t, SendError, snap.SendStatus)
	assert.Equal(t, StateLive, snap.State, "send failures never end the session")

	require.Eventually(t, func() bool { return h.s.Snapshot().SendStatus == SendIdle }, waitFor, tick)
}

func TestSession_EmptySendIsNoop(t *testing.T) {
	b := newFakeBackend()
	h := newHarness(t, b)
	h.start(t)

	h.s.SetInput("   ")
	require.Nil(t, h.s.Send(context.Background()))
	assert.Zero(t, b.sendCalls)

	h.s.SetInput("draft")
	h.s.ClearInput()
	assert.Empty(t, h.s.Input())
}

func TestSession_SendMarksUnreadFirst(t *testing.T) {
	b := newFakeBackend()
	b.seedMessage("m1", "u2", 0)
	h := newHarness(t, b)
	h.start(t)
	require.Equal(t, []string{"m1"}, h.s.Snapshot().Unread)

	h.s.SetInput("reply")
	require.Nil(t, h.s.Send(context.Background()))

	require.Eventually(t, func() bool { return len(h.s.Snapshot().Unread) == 0 }, waitFor, tick)
	assert.Equal(t, []string{"u1"}, b.readers("m1"))
}

func TestSession_RemoteInsertWhileScrolledUp(t *testing.T) {
	b := newFakeBackend()
	h := newHarness(t, b)
	h.start(t)
	h.s.Scroll(notAtBottom())

	h.feed.current().push(realtime.MessageInserted(entity.Message{ID: "n1", GroupID: "g1", AuthorID: "u2", Body: "ping", CreatedAt: t0}))

	require.Eventually(t, func() bool {
		snap := h.s.Snapshot()
		return len(snap.Unread) == 1 && len(snap.Incoming) == 1
	}, waitFor, tick)
	assert.Empty(t, b.readers("n1"))
	assert.True(t, h.rec.has(EventIncoming, func(e Event) bool { return e.MessageID == "n1" && e.Active }))
	assert.True(t, h.rec.has(EventFlash, func(e Event) bool { return e.Active }))

	// the pulse clears on its own
	require.Eventually(t, func() bool { return len(h.s.Snapshot().Incoming) == 0 }, waitFor, tick)

	h.s.Scroll(atBottom())
	require.Eventually(t, func() bool { return len(h.s.Snapshot().Unread) == 0 }, waitFor, tick)
	assert.Equal(t, []string{"u1"}, b.readers("n1"))
}

func TestSession_RemoteInsertAtBottomIsMarkedImmediately(t *testing.T) {
	b := newFakeBackend()
	h := newHarness(t, b)
	h.start(t)

	h.feed.current().push(realtime.MessageInserted(entity.Message{ID: "n1", GroupID: "g1", AuthorID: "u2", CreatedAt: t0}))

	require.Eventually(t, func() bool { return len(b.readers("n1")) == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return len(h.s.Snapshot().Unread) == 0 }, waitFor, tick)
}

func TestSession_OwnRemoteInsertHasNoSideEffects(t *testing.T) {
	b := newFakeBackend()
	h := newHarness(t, b)
	h.start(t)
	h.s.Scroll(notAtBottom())

	h.feed.current().push(realtime.MessageInserted(entity.Message{ID: "x1", GroupID: "g1", AuthorID: "u1", CreatedAt: t0}))
	h.feed.current().push(realtime.MessageInserted(entity.Message{ID: "x2", GroupID: "other", AuthorID: "u2", CreatedAt: t0}))

	require.Eventually(t, func() bool { return h.s.stream.Has("x1") }, waitFor, tick)
	snap := h.s.Snapshot()
	assert.Equal(t, []string{"x1"}, messageIDs(snap))
	assert.Empty(t, snap.Unread)
	assert.Empty(t, snap.Incoming)
	assert.False(t, h.rec.has(EventIncoming, nil))
}

func TestSession_RemoteReads(t *testing.T) {
	b := newFakeBackend()
	seedHistory(b)
	h := newHarness(t, b)
	h.start(t)
	h.s.Scroll(notAtBottom())

	sub := h.feed.current()
	sub.push(realtime.ReadInserted(entity.MessageRead{MessageID: "m2", UserID: "u2", GroupID: "g1", ReadAt: t0}))
	sub.push(realtime.ReadInserted(entity.MessageRead{MessageID: "m2", UserID: "u2", GroupID: "g1", ReadAt: t0}))
	sub.push(realtime.ReadInserted(entity.MessageRead{MessageID: "m4", UserID: "u1", GroupID: "g1", ReadAt: t0}))

	require.Eventually(t, func() bool { return h.s.Snapshot().LastRead == "m4" }, waitFor, tick)

	snap := h.s.Snapshot()
	assert.Equal(t, []string{"m3"}, snap.Unread)

	v, ok := h.s.stream.Get("m2")
	require.True(t, ok)
	assert.Equal(t, []string{"u2"}, v.ReadBy())

	summary, ok := h.s.ReceiptSummary("m2")
	require.True(t, ok)
	assert.Equal(t, 0, summary.Total, "roster only holds the author")
	assert.Equal(t, 1, summary.ReadCount)
}

func TestSession_OwnReadBeforeMessageKeepsItRead(t *testing.T) {
	b := newFakeBackend()
	h := newHarness(t, b)
	h.start(t)
	h.s.Scroll(notAtBottom())

	sub := h.feed.current()
	sub.push(realtime.ReadInserted(entity.MessageRead{MessageID: "n1", UserID: "u1", GroupID: "g1", ReadAt: t0}))
	sub.push(realtime.MessageInserted(entity.Message{ID: "n1", GroupID: "g1", AuthorID: "u2", Body: "ping", CreatedAt: t0}))

	require.Eventually(t, func() bool { return h.s.stream.Has("n1") }, waitFor, tick)

	v, ok := h.s.stream.Get("n1")
	require.True(t, ok)
	assert.Equal(t, []string{"u1"}, v.ReadBy())
	assert.False(t, v.IsUnread("u1"))
	assert.Empty(t, h.s.tracker.Unread())
	assert.Empty(t, h.s.Snapshot().Unread)
	assert.Empty(t, b.readers("n1"), "no second receipt is written")

	// it still pulses as a new arrival
	assert.True(t, h.rec.has(EventIncoming, func(e Event) bool { return e.MessageID == "n1" && e.Active }))
}

func TestSession_OutOfOrderInsertsStayOrdered(t *testing.T) {
	b := newFakeBackend()
	seedHistory(b)
	h := newHarness(t, b)
	h.start(t)

	sub := h.feed.current()
	for _, off := range []time.Duration{50, 10, 40, 20, 30} {
		id := "late-" + off.String()
		sub.push(realtime.MessageInserted(entity.Message{ID: id, GroupID: "g1", AuthorID: "u3", CreatedAt: t0.Add(off * time.Second)}))
	}
	require.Eventually(t, func() bool { return len(h.s.Snapshot().Messages) == 9 }, waitFor, tick)

	msgs := h.s.Snapshot().Messages
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].Message.CreatedAt.Before(msgs[i-1].Message.CreatedAt), "index %d out of order", i)
	}
}

func TestSession_MarkAllReadIsolatesFailures(t *testing.T) {
	b := newFakeBackend()
	b.seedMessage("m1", "u2", 0)
	b.seedMessage("m2", "u2", time.Second)
	b.seedMessage("m3", "u2", 2*time.Second)
	b.setFailRead("m2", true)
	h := newHarness(t, b)
	h.start(t)
	h.s.Scroll(notAtBottom())

	failed := h.s.MarkAllRead(context.Background())
	assert.Equal(t, []string{"m2"}, failed)
	assert.Equal(t, []string{"m2"}, h.s.Snapshot().Unread)
	assert.Equal(t, 2, b.readCount())
}

func TestSession_ResubscribesAfterChannelError(t *testing.T) {
	b := newFakeBackend()
	h := newHarness(t, b)
	h.start(t)
	require.Eventually(t, func() bool { return h.s.Snapshot().Connection == ConnConnected }, waitFor, tick)

	first := h.feed.current()
	first.report(realtime.StatusChannelError)

	require.Eventually(t, func() bool {
		return h.rec.has(EventConnection, func(e Event) bool { return e.Connection == ConnReconnecting })
	}, waitFor, tick)
	require.Eventually(t, func() bool { return h.feed.attempts() == 2 }, waitFor, tick)
	assert.True(t, first.isClosed())
	require.Eventually(t, func() bool { return h.s.Snapshot().Connection == ConnConnected }, waitFor, tick)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, h.feed.attempts(), "one retry per failure")

	// the new subscription delivers
	h.feed.current().push(realtime.MessageInserted(entity.Message{ID: "after", GroupID: "g1", AuthorID: "u2", CreatedAt: t0}))
	require.Eventually(t, func() bool { return h.s.stream.Has("after") }, waitFor, tick)
}

func TestSession_StopRacingResubscribe(t *testing.T) {
	for i := 0; i < 25; i++ {
		b := newFakeBackend()
		h := newHarness(t, b, func(cfg *config.RoomConfig) { cfg.ResubscribeDelay = time.Millisecond })
		h.start(t)
		require.Eventually(t, func() bool { return h.s.Snapshot().Connection == ConnConnected }, waitFor, tick)

		h.feed.current().report(realtime.StatusChannelError)
		require.Eventually(t, func() bool { return h.feed.attempts() >= 2 }, waitFor, time.Millisecond)
		h.s.Stop(context.Background())

		// every subscription opened before or during teardown ends up closed
		require.Eventually(t, func() bool {
			h.feed.mu.Lock()
			defer h.feed.mu.Unlock()
			for _, sub := range h.feed.subs {
				if !sub.isClosed() {
					return false
				}
			}
			return true
		}, waitFor, tick, "run %d", i)
	}
}

func TestSession_ComponentLoggers(t *testing.T) {
	var out lockedBuffer
	b := newFakeBackend()
	b.seedMessage("m1", "u2", 0)
	s := NewSession(b, &fakeFeed{autoAck: true}, "g1", "u1",
		WithConfig(testConfig()),
		WithLogger(zerolog.New(&out).Level(zerolog.DebugLevel)),
	)
	require.Nil(t, s.Start(context.Background()))
	s.Scroll(notAtBottom())
	assert.Empty(t, s.MarkAllRead(context.Background()))
	s.Stop(context.Background())

	var receiptLines int
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		assert.Equal(t, 1, strings.Count(line, `"component":`), line)
		assert.Contains(t, line, `"groupID":"g1"`)
		assert.Contains(t, line, `"userID":"u1"`)
		if strings.Contains(line, `"component":"receipt"`) {
			receiptLines++
		}
	}
	assert.NotZero(t, receiptLines)
}

func TestSession_SubscribeErrorIsRetried(t *testing.T) {
	b := newFakeBackend()
	h := newHarness(t, b)
	h.feed.failNext = 1
	h.start(t)

	assert.Equal(t, StateLive, h.s.Snapshot().State)
	require.Eventually(t, func() bool { return h.feed.attempts() == 2 }, waitFor, tick)
	require.Eventually(t, func() bool { return h.s.Snapshot().Connection == ConnConnected }, waitFor, tick)
}

func TestSession_StopFlushesAndUnsubscribes(t *testing.T) {
	b := newFakeBackend()
	b.seedMessage("m1", "u2", 0)
	h := newHarness(t, b)
	h.start(t)
	h.s.Scroll(notAtBottom())
	sub := h.feed.current()

	h.s.Stop(context.Background())

	assert.Equal(t, []string{"u1"}, b.readers("m1"))
	assert.True(t, sub.isClosed())
	assert.Equal(t, StateClosed, h.s.Snapshot().State)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, h.feed.attempts(), "no resubscribe after teardown")
}

func TestSession_EventsAfterStopAreDiscarded(t *testing.T) {
	b := newFakeBackend()
	seedHistory(b)
	h := newHarness(t, b)
	h.start(t)
	h.s.Scroll(notAtBottom())
	b.setFailRead("m3", true)
	b.setFailRead("m4", true)

	h.s.Stop(context.Background())
	before := h.s.Snapshot()
	events := h.rec.count()

	h.s.handleChange(realtime.MessageInserted(entity.Message{ID: "late", GroupID: "g1", AuthorID: "u2", CreatedAt: t0}))
	h.s.handleChange(realtime.ReadInserted(entity.MessageRead{MessageID: "m3", UserID: "u1", GroupID: "g1"}))
	h.s.handleStatus(realtime.StatusChannelError, 0)
	h.s.SetInput("typed after leaving")
	h.s.Scroll(atBottom())
	assert.Nil(t, h.s.MarkAllRead(context.Background()))

	assert.Equal(t, before, h.s.Snapshot())
	assert.Equal(t, events, h.rec.count())
	assert.Equal(t, 1, h.feed.attempts())
}

func TestSession_InFlightSendAfterStopIsDiscarded(t *testing.T) {
	b := newFakeBackend()
	b.sendGate = make(chan struct{})
	h := newHarness(t, b)
	h.start(t)

	h.s.SetInput("last words")
	done := make(chan *app_error.AppError, 1)
	go func() { done <- h.s.Send(context.Background()) }()
	require.Eventually(t, func() bool { return h.s.stream.Len() == 1 }, waitFor, tick)

	h.s.Stop(context.Background())
	before := h.s.Snapshot()

	close(b.sendGate)
	assert.Nil(t, <-done)
	assert.Equal(t, before, h.s.Snapshot())
	assert.True(t, before.Messages[0].Pending)
}
