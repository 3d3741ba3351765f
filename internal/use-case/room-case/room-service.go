package room_service

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/crew-chat/config"
	"github.com/xenn00/crew-chat/internal/entity"
	app_error "github.com/xenn00/crew-chat/internal/errors"
	"github.com/xenn00/crew-chat/internal/realtime"
	"github.com/xenn00/crew-chat/internal/receipt"
	"github.com/xenn00/crew-chat/internal/stream"
	"github.com/xenn00/crew-chat/internal/utils"
)

const (
	slotInitialRead = "initial-read"
	slotResubscribe = "resubscribe"
	slotStatus      = "status"
	slotFlash       = "notify"
	slotIncoming    = "incoming:"

	flashInterval = 300 * time.Millisecond
	flashCount    = 3
)

// Session owns the client state of one chat room from join to teardown. Every mutation is
// applied under mu and only while alive is set, so nothing arriving after Stop changes state.
type Session struct {
	backend Backend
	feed    realtime.Feed
	groupID string
	userID  string

	cfg         config.RoomConfig
	base        zerolog.Logger
	log         zerolog.Logger
	listener    Listener
	newClientID func() string
	streamOpts  []stream.Option

	alive  atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	conn       ConnectionStatus
	group      *entity.Group
	members    []entity.GroupMember
	input      string
	sendStatus SendStatus
	incoming   map[string]struct{}
	flashing   bool
	lastErr    *app_error.AppError
	sub        realtime.Subscription
	subGen     uint64

	stream  *stream.Stream
	tracker *receipt.Tracker
	timers  *utils.TimerSlots

	emitMu sync.Mutex
	wg     sync.WaitGroup
}

type Option func(*Session)

func WithConfig(cfg config.RoomConfig) Option {
	return func(s *Session) { s.cfg = cfg }
}

// WithLogger sets the logger the session and its tracker derive their component loggers from.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.base = l }
}

func WithListener(l Listener) Option {
	return func(s *Session) { s.listener = l }
}

// WithClientIDs overrides how send correlation ids are generated.
func WithClientIDs(fn func() string) Option {
	return func(s *Session) { s.newClientID = fn }
}

func WithStreamOptions(opts ...stream.Option) Option {
	return func(s *Session) { s.streamOpts = append(s.streamOpts, opts...) }
}

func NewSession(backend Backend, feed realtime.Feed, groupID, userID string, opts ...Option) *Session {
	s := &Session{
		backend:     backend,
		feed:        feed,
		groupID:     groupID,
		userID:      userID,
		cfg:         config.DefaultRoomConfig(),
		listener:    func(Event) {},
		newClientID: uuid.NewString,
		state:       StateIdle,
		conn:        ConnDisconnected,
		incoming:    make(map[string]struct{}),
		timers:      utils.NewTimerSlots(),
		base:        log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.base.With().Str("component", "room").Str("groupID", groupID).Str("userID", userID).Logger()

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.stream = stream.New(s.streamOpts...)
	s.tracker = receipt.NewTracker(backend, groupID, userID,
		receipt.WithConfig(s.cfg),
		receipt.WithTimers(s.timers),
		receipt.WithOrder(s.stream.Before),
		receipt.WithLogger(s.base.With().Str("component", "receipt").Str("groupID", groupID).Str("userID", userID).Logger()),
		receipt.OnChange(func() { s.emit(Event{Kind: EventUnread, Unread: s.tracker.Unread()}) }),
	)
	return s
}

func (s *Session) GroupID() string { return s.groupID }
func (s *Session) UserID() string  { return s.userID }

// Start joins the room: membership, group, roster, history, then the change feed. Roster
// failures degrade the session; any other failure is fatal and leaves it in StateError.
func (s *Session) Start(ctx context.Context) *app_error.AppError {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return app_error.NewAppError(http.StatusConflict, "session already started", "session").WithKind(app_error.KindFatal)
	}
	s.state = StateJoining
	s.alive.Store(true)
	s.mu.Unlock()
	s.emit(Event{Kind: EventState, State: StateJoining})

	if _, err := s.backend.EnsureMembership(ctx, s.groupID, s.userID); err != nil {
		return s.fail(err, "failed to ensure membership")
	}

	group, err := s.backend.GetGroup(ctx, s.groupID)
	if err != nil {
		return s.fail(err, "failed to fetch group")
	}

	members, err := s.backend.ListMembers(ctx, s.groupID)
	if err != nil {
		s.log.Warn().Str("reason", err.Message).Msg("member roster unavailable")
		members = nil
		s.emit(Event{Kind: EventError, Err: err.WithKind(app_error.KindDegraded)})
	}

	messages, err := s.backend.ListMessages(ctx, s.groupID)
	if err != nil {
		return s.fail(err, "failed to fetch messages")
	}

	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	reads, err := s.backend.ListReads(ctx, ids)
	if err != nil {
		return s.fail(err, "failed to fetch read receipts")
	}

	s.mu.Lock()
	if !s.alive.Load() {
		s.mu.Unlock()
		return closedError()
	}
	s.group = group
	s.members = members
	s.stream.Seed(messages, reads)
	lastRead, _ := s.stream.LastReadBy(s.userID)
	s.tracker.Seed(s.stream.UnreadFor(s.userID), lastRead)
	s.mu.Unlock()

	s.emit(Event{Kind: EventMessages, Messages: s.stream.Messages()})

	s.subscribe()

	s.timers.Schedule(slotInitialRead, s.cfg.InitialReadDelay, func() {
		s.spawn(func(ctx context.Context) { s.tracker.MarkAll(ctx) })
	})

	s.mu.Lock()
	if !s.alive.Load() {
		s.mu.Unlock()
		return closedError()
	}
	s.state = StateLive
	s.mu.Unlock()
	s.emit(Event{Kind: EventState, State: StateLive})

	s.log.Info().Int("messages", len(messages)).Int("members", len(members)).Msg("room session live")
	return nil
}

func closedError() *app_error.AppError {
	return app_error.NewAppError(http.StatusGone, "session closed", "session").WithKind(app_error.KindFatal)
}

func (s *Session) fail(err *app_error.AppError, msg string) *app_error.AppError {
	fatal := err.WithKind(app_error.KindFatal)

	s.mu.Lock()
	if !s.alive.Load() {
		s.mu.Unlock()
		return fatal
	}
	s.state = StateError
	s.lastErr = fatal
	s.mu.Unlock()

	s.log.Error().Str("reason", err.Message).Msg(msg)
	s.emit(Event{Kind: EventError, Err: fatal})
	s.emit(Event{Kind: EventState, State: StateError})
	return fatal
}

// subscribe opens the change feed. It is the step repeated on reconnect.
func (s *Session) subscribe() {
	if !s.alive.Load() {
		return
	}
	s.setConnection(ConnConnecting)

	sub, err := s.feed.Subscribe(s.ctx, s.groupID, realtime.SubscriptionTag(s.groupID, s.userID))
	if err != nil {
		s.log.Warn().Err(err).Msg("subscribe failed")
		s.mu.Lock()
		gen := s.subGen
		s.mu.Unlock()
		s.onChannelFailure(gen)
		return
	}

	s.mu.Lock()
	if !s.alive.Load() {
		s.mu.Unlock()
		sub.Close()
		return
	}
	s.subGen++
	gen := s.subGen
	s.sub = sub
	s.wg.Add(1)
	s.mu.Unlock()

	go s.pump(sub, gen)
}

func (s *Session) pump(sub realtime.Subscription, gen uint64) {
	defer s.wg.Done()

	events, statuses := sub.Events(), sub.Status()
	for events != nil || statuses != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleChange(ev)
		case st, ok := <-statuses:
			if !ok {
				statuses = nil
				continue
			}
			s.handleStatus(st, gen)
		}
	}
}

func (s *Session) handleStatus(st realtime.Status, gen uint64) {
	switch st {
	case realtime.StatusSubscribed:
		s.mu.Lock()
		current := gen == s.subGen
		s.mu.Unlock()
		if current {
			s.setConnection(ConnConnected)
		}
	case realtime.StatusChannelError, realtime.StatusClosed:
		s.onChannelFailure(gen)
	}
}

// onChannelFailure schedules one resubscribe for a failure of the current subscription.
func (s *Session) onChannelFailure(gen uint64) {
	s.mu.Lock()
	if !s.alive.Load() || gen != s.subGen {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.log.Warn().Dur("delay", s.cfg.ResubscribeDelay).Msg("realtime channel failed, resubscribing")
	s.setConnection(ConnReconnecting)
	s.timers.Schedule(slotResubscribe, s.cfg.ResubscribeDelay, s.resubscribe)
}

func (s *Session) resubscribe() {
	s.mu.Lock()
	if !s.alive.Load() {
		s.mu.Unlock()
		return
	}
	old := s.sub
	s.sub = nil
	s.subGen++
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	s.subscribe()
}

func (s *Session) setConnection(c ConnectionStatus) {
	s.mu.Lock()
	if !s.alive.Load() || s.conn == c {
		s.mu.Unlock()
		return
	}
	s.conn = c
	s.mu.Unlock()
	s.emit(Event{Kind: EventConnection, Connection: c})
}

func (s *Session) handleChange(ev realtime.ChangeEvent) {
	if ev.GroupID != s.groupID {
		return
	}

	switch ev.Table {
	case realtime.TableMessages:
		if ev.Message != nil {
			s.applyRemoteMessage(*ev.Message)
		}
	case realtime.TableMessageReads:
		if ev.Read != nil {
			s.applyRemoteRead(*ev.Read)
		}
	}
}

func (s *Session) applyRemoteMessage(m entity.Message) {
	s.mu.Lock()
	if !s.alive.Load() {
		s.mu.Unlock()
		return
	}
	outcome := s.stream.Apply(m)
	foreign := outcome == stream.Inserted && m.AuthorID != s.userID
	if foreign {
		s.incoming[m.ID] = struct{}{}
		// a held-back read of ours may already be attached
		if v, ok := s.stream.Get(m.ID); ok && v.IsUnread(s.userID) {
			s.tracker.Track(m.ID)
		}
	}
	s.mu.Unlock()

	if outcome == stream.Ignored {
		return
	}
	s.emit(Event{Kind: EventMessages, Messages: s.stream.Messages()})
	if !foreign {
		return
	}

	s.emit(Event{Kind: EventIncoming, MessageID: m.ID, Active: true})
	s.timers.Schedule(slotIncoming+m.ID, s.cfg.IncomingPulse, func() { s.clearIncoming(m.ID) })
	s.flash(0)
}

func (s *Session) clearIncoming(id string) {
	s.mu.Lock()
	if !s.alive.Load() {
		s.mu.Unlock()
		return
	}
	delete(s.incoming, id)
	s.mu.Unlock()
	s.emit(Event{Kind: EventIncoming, MessageID: id, Active: false})
}

// flash alternates the notification cue flashCount times, flashInterval apart.
func (s *Session) flash(step int) {
	s.mu.Lock()
	if !s.alive.Load() {
		s.mu.Unlock()
		return
	}
	on := step < flashCount && step%2 == 0
	s.flashing = on
	s.mu.Unlock()
	s.emit(Event{Kind: EventFlash, Active: on})

	if step < flashCount {
		s.timers.Schedule(slotFlash, flashInterval, func() { s.flash(step + 1) })
	}
}

func (s *Session) applyRemoteRead(r entity.MessageRead) {
	s.mu.Lock()
	if !s.alive.Load() {
		s.mu.Unlock()
		return
	}
	changed := s.stream.ApplyRead(r)
	s.tracker.ApplyRemoteRead(r)
	s.mu.Unlock()

	if changed {
		s.emit(Event{Kind: EventMessages, Messages: s.stream.Messages()})
	}
}

// Scroll feeds a viewport measurement to the read tracker.
func (s *Session) Scroll(v receipt.Viewport) {
	if !s.alive.Load() {
		return
	}
	s.tracker.OnScroll(v)
}

// MarkAllRead marks every unread message now and returns the ids that failed.
func (s *Session) MarkAllRead(ctx context.Context) []string {
	if !s.alive.Load() {
		return nil
	}
	return s.tracker.MarkAll(ctx)
}

// ReceiptSummary aggregates who has read messageID among the current roster.
func (s *Session) ReceiptSummary(messageID string) (receipt.Summary, bool) {
	v, ok := s.stream.Get(messageID)
	if !ok {
		return receipt.Summary{}, false
	}

	s.mu.Lock()
	ids := make([]string, 0, len(s.members))
	for _, m := range s.members {
		ids = append(ids, m.UserID)
	}
	s.mu.Unlock()
	return receipt.Summarize(v, ids), true
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	incoming := make([]string, 0, len(s.incoming))
	for id := range s.incoming {
		incoming = append(incoming, id)
	}
	sort.Strings(incoming)

	members := make([]entity.GroupMember, len(s.members))
	copy(members, s.members)

	return Snapshot{
		GroupID:    s.groupID,
		UserID:     s.userID,
		State:      s.state,
		Connection: s.conn,
		Group:      s.group,
		Members:    members,
		Messages:   s.stream.Messages(),
		Unread:     s.tracker.Unread(),
		LastRead:   s.tracker.LastRead(),
		Input:      s.input,
		SendStatus: s.sendStatus,
		Incoming:   incoming,
		Flashing:   s.flashing,
		Err:        s.lastErr,
	}
}

// Stop tears the room down: unsubscribe, cancel timers, one best-effort read flush. Results
// of requests still in flight are discarded.
func (s *Session) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	wasAlive := s.alive.Swap(false)
	s.state = StateClosed
	s.conn = ConnDisconnected
	sub := s.sub
	s.sub = nil
	s.subGen++
	s.mu.Unlock()

	s.timers.StopAll()
	if sub != nil {
		if err := sub.Close(); err != nil {
			s.log.Debug().Err(err).Msg("unsubscribe failed")
		}
	}
	s.cancel()

	if wasAlive {
		s.tracker.Close(ctx)
	}
	s.wg.Wait()
	s.tracker.Wait()
	s.log.Info().Msg("room session closed")
}

func (s *Session) spawn(fn func(ctx context.Context)) {
	s.mu.Lock()
	if !s.alive.Load() {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (s *Session) emit(ev Event) {
	if !s.alive.Load() {
		return
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.listener(ev)
}
