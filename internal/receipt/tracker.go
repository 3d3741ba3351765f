// Package receipt decides when messages count as read and keeps the local unread set in step
// with read receipts from every participant.
package receipt

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/crew-chat/config"
	"github.com/xenn00/crew-chat/internal/entity"
	app_error "github.com/xenn00/crew-chat/internal/errors"
	"github.com/xenn00/crew-chat/internal/utils"
	"golang.org/x/sync/errgroup"
)

const (
	slotReadReceipt = "read-receipt"
	markConcurrency = 16
)

// Marker persists one read receipt; repeated calls for a pair must be harmless.
type Marker interface {
	UpsertRead(ctx context.Context, read entity.MessageRead) *app_error.AppError
}

type Tracker struct {
	mu            sync.Mutex
	marker        Marker
	groupID       string
	userID        string
	// unread maps ids to their arrival sequence.
	unread        map[string]uint64
	seq           uint64
	lastRead      string
	atBottom      bool
	lastScrollTop float64
	closed        bool

	cfg      config.RoomConfig
	timers   *utils.TimerSlots
	log      zerolog.Logger
	now      func() time.Time
	onChange func()
	before   func(a, b string) bool
	wg       sync.WaitGroup
}

type Option func(*Tracker)

func WithConfig(cfg config.RoomConfig) Option {
	return func(t *Tracker) { t.cfg = cfg }
}

func WithLogger(l zerolog.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithTimers shares a timer store with the owner so teardown cancels everything at once.
func WithTimers(ts *utils.TimerSlots) Option {
	return func(t *Tracker) { t.timers = ts }
}

// OnChange is called, without locks held, after the unread set or last read changes.
func OnChange(fn func()) Option {
	return func(t *Tracker) { t.onChange = fn }
}

// WithOrder ranks message ids so a batch mark settles on the newest one as last read.
// Without it ids rank by the order they were seeded or tracked.
func WithOrder(before func(a, b string) bool) Option {
	return func(t *Tracker) { t.before = before }
}

func NewTracker(marker Marker, groupID, userID string, opts ...Option) *Tracker {
	t := &Tracker{
		marker:   marker,
		groupID:  groupID,
		userID:   userID,
		unread:   make(map[string]uint64),
		atBottom: true,
		cfg:      config.DefaultRoomConfig(),
		log:      log.With().Str("component", "receipt").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
		onChange: func() {},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.timers == nil {
		t.timers = utils.NewTimerSlots()
	}
	return t
}

// Seed replaces the unread set after a history load.
func (t *Tracker) Seed(unread []string, lastRead string) {
	t.mu.Lock()
	t.unread = make(map[string]uint64, len(unread))
	for _, id := range unread {
		t.seq++
		t.unread[id] = t.seq
	}
	t.lastRead = lastRead
	t.mu.Unlock()
	t.onChange()
}

// Track adds a freshly arrived message to the unread set. When the view sits at the bottom
// it is marked right away, and Track reports true.
func (t *Tracker) Track(id string) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	if _, ok := t.unread[id]; !ok {
		t.seq++
		t.unread[id] = t.seq
	}
	atBottom := t.atBottom
	t.mu.Unlock()
	t.onChange()

	if atBottom {
		t.spawn(func(ctx context.Context) { t.MarkRead(ctx, id) })
	}
	return atBottom
}

func (t *Tracker) Unread() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.unread))
	for id := range t.unread {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (t *Tracker) IsUnread(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.unread[id]
	return ok
}

func (t *Tracker) LastRead() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastRead
}

func (t *Tracker) AtBottom() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.atBottom
}

// MarkRead upserts a receipt for id. Failures are logged at debug level and reported as false;
// the id then stays unread for the next trigger.
func (t *Tracker) MarkRead(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}

	err := t.marker.UpsertRead(ctx, entity.MessageRead{
		MessageID: id,
		UserID:    t.userID,
		GroupID:   t.groupID,
		ReadAt:    t.now(),
	})
	if err != nil {
		t.log.Debug().Str("messageID", id).Str("reason", err.Message).Msg("mark read failed")
		return false
	}

	t.settle([]string{id})
	return true
}

// MarkAll marks every unread id with one independent request each and drops only the ids
// that succeeded. It returns the ids that are still unread because their request failed.
func (t *Tracker) MarkAll(ctx context.Context) []string {
	return t.markIDs(ctx, t.Unread())
}

func (t *Tracker) markIDs(ctx context.Context, ids []string) []string {
	if len(ids) == 0 {
		return nil
	}

	var (
		mu        sync.Mutex
		succeeded []string
		failed    []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(markConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			err := t.marker.UpsertRead(gctx, entity.MessageRead{
				MessageID: id,
				UserID:    t.userID,
				GroupID:   t.groupID,
				ReadAt:    t.now(),
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				t.log.Debug().Str("messageID", id).Str("reason", err.Message).Msg("mark read failed")
				failed = append(failed, id)
				return nil
			}
			succeeded = append(succeeded, id)
			return nil
		})
	}
	_ = g.Wait()

	t.settle(succeeded)
	t.log.Debug().Int("marked", len(succeeded)).Int("failed", len(failed)).Msg("marked messages as read")
	sort.Strings(failed)
	return failed
}

func (t *Tracker) settle(ids []string) {
	if len(ids) == 0 {
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	last := ids[0]
	for _, id := range ids[1:] {
		if t.newerLocked(id, last) {
			last = id
		}
	}
	for _, id := range ids {
		delete(t.unread, id)
	}
	t.lastRead = last
	t.mu.Unlock()
	t.onChange()
}

func (t *Tracker) newerLocked(a, b string) bool {
	if t.before != nil {
		return t.before(b, a)
	}
	return t.unread[a] > t.unread[b]
}

// OnScroll evaluates a scroll event. Reaching the bottom marks everything at once; scrolling
// down elsewhere queues the visible unread ids behind the debounce.
func (t *Tracker) OnScroll(v Viewport) {
	atBottom := v.IsAtBottom(t.cfg.BottomThreshold)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	scrollingDown := v.ScrollTop > t.lastScrollTop
	t.lastScrollTop = v.ScrollTop
	t.atBottom = atBottom
	hasUnread := len(t.unread) > 0

	var visible []string
	if !atBottom && scrollingDown && hasUnread {
		for _, id := range v.VisibleIDs(t.cfg.ViewportTolerance) {
			if _, ok := t.unread[id]; ok {
				visible = append(visible, id)
			}
		}
	}
	t.mu.Unlock()

	switch {
	case atBottom && hasUnread:
		t.timers.Cancel(slotReadReceipt)
		t.spawn(func(ctx context.Context) { t.MarkAll(ctx) })
	case len(visible) > 0:
		t.timers.Schedule(slotReadReceipt, t.cfg.ReadDebounce, func() {
			t.spawn(func(ctx context.Context) { t.markIDs(ctx, visible) })
		})
	}
}

// ApplyRemoteRead merges a read receipt from the change feed.
func (t *Tracker) ApplyRemoteRead(r entity.MessageRead) {
	if r.UserID != t.userID {
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	delete(t.unread, r.MessageID)
	t.lastRead = r.MessageID
	t.mu.Unlock()
	t.onChange()
}

// spawn runs fn in the background with its own request deadline. In-flight requests are not
// cancelled by Close; their results are discarded instead.
func (t *Tracker) spawn(fn func(ctx context.Context)) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.RequestTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// Close cancels the debounce, makes one best-effort attempt to mark what is still unread and
// stops applying further results.
func (t *Tracker) Close(ctx context.Context) {
	t.timers.Cancel(slotReadReceipt)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	t.MarkAll(ctx)

	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// Wait blocks until background marks have returned.
func (t *Tracker) Wait() {
	t.wg.Wait()
}
