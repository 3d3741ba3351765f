// Package stream merges history, optimistic sends and realtime inserts for one room into a
// single deduplicated list ordered by created_at.
package stream

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xenn00/crew-chat/internal/entity"
)

type Outcome int

const (
	// Ignored means the message was already present.
	Ignored Outcome = iota
	// Inserted means a new logical message joined the stream.
	Inserted
	// Replaced means a pending entry was swapped for its stored row.
	Replaced
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Replaced:
		return "replaced"
	default:
		return "ignored"
	}
}

type entry struct {
	msg   entity.Message
	reads []entity.MessageRead
	seq   uint64
}

func (e *entry) before(o *entry) bool {
	if !e.msg.CreatedAt.Equal(o.msg.CreatedAt) {
		return e.msg.CreatedAt.Before(o.msg.CreatedAt)
	}
	return e.seq < o.seq
}

func (e *entry) addRead(r entity.MessageRead) bool {
	for _, existing := range e.reads {
		if existing.UserID == r.UserID {
			return false
		}
	}
	e.reads = append(e.reads, r)
	return true
}

type Stream struct {
	mu       sync.RWMutex
	entries  []*entry
	byID     map[string]*entry
	byClient map[string]*entry
	// orphans holds reads that arrived before their message.
	orphans map[string][]entity.MessageRead
	seq     uint64
	now     func() time.Time
}

type Option func(*Stream)

// WithClock replaces the clock used to stamp pending entries.
func WithClock(now func() time.Time) Option {
	return func(s *Stream) { s.now = now }
}

func New(opts ...Option) *Stream {
	s := &Stream{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.reset()
	return s
}

func (s *Stream) reset() {
	s.entries = nil
	s.byID = make(map[string]*entry)
	s.byClient = make(map[string]*entry)
	s.orphans = make(map[string][]entity.MessageRead)
}

// Seed replaces the stream content with a history load.
func (s *Stream) Seed(messages []entity.Message, reads []entity.MessageRead) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	for _, m := range messages {
		if _, ok := s.byID[m.ID]; ok {
			continue
		}
		s.insertLocked(s.newEntry(m))
	}
	for _, r := range reads {
		s.applyReadLocked(r)
	}
}

func (s *Stream) newEntry(m entity.Message) *entry {
	s.seq++
	return &entry{msg: m, seq: s.seq}
}

func (s *Stream) insertLocked(e *entry) {
	i := sort.Search(len(s.entries), func(i int) bool { return e.before(s.entries[i]) })
	s.entries = append(s.entries, nil)
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = e

	s.byID[e.msg.ID] = e
	if e.msg.ClientID != "" {
		s.byClient[e.msg.ClientID] = e
	}
	if orphans, ok := s.orphans[e.msg.ID]; ok {
		for _, r := range orphans {
			e.addRead(r)
		}
		delete(s.orphans, e.msg.ID)
	}
}

func (s *Stream) removeLocked(e *entry) {
	for i, cur := range s.entries {
		if cur == e {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	delete(s.byID, e.msg.ID)
	if e.msg.ClientID != "" && s.byClient[e.msg.ClientID] == e {
		delete(s.byClient, e.msg.ClientID)
	}
}

// AddPending appends an optimistic message stamped with the local clock and returns it.
func (s *Stream) AddPending(groupID, authorID, clientID, body string) entity.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	id := fmt.Sprintf("%s%d", entity.PendingPrefix, now.UnixMilli())
	for n := 1; s.byID[id] != nil; n++ {
		id = fmt.Sprintf("%s%d-%d", entity.PendingPrefix, now.UnixMilli(), n)
	}

	msg := entity.Message{
		ID:        id,
		GroupID:   groupID,
		AuthorID:  authorID,
		ClientID:  clientID,
		Body:      body,
		CreatedAt: now,
	}
	s.insertLocked(s.newEntry(msg))
	return msg
}

// Apply merges a stored message from the insert response or the realtime feed. A pending
// entry carrying the same client id is replaced in place of being duplicated.
func (s *Stream) Apply(msg entity.Message) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.IsPending() {
		return Ignored
	}
	if _, ok := s.byID[msg.ID]; ok {
		return Ignored
	}

	if msg.ClientID != "" {
		if pending, ok := s.byClient[msg.ClientID]; ok && pending.msg.IsPending() {
			s.removeLocked(pending)
			committed := &entry{msg: msg, seq: pending.seq, reads: pending.reads}
			s.insertLocked(committed)
			return Replaced
		}
	}

	s.insertLocked(s.newEntry(msg))
	return Inserted
}

// RemovePending drops an optimistic entry after its insert failed.
func (s *Stream) RemovePending(id string) (entity.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[id]
	if !ok || !e.msg.IsPending() {
		return entity.Message{}, false
	}
	s.removeLocked(e)
	return e.msg, true
}

// ApplyRead records a read receipt, deduplicated by user. Reads for messages not yet in the
// stream are held until the message arrives.
func (s *Stream) ApplyRead(r entity.MessageRead) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyReadLocked(r)
}

func (s *Stream) applyReadLocked(r entity.MessageRead) bool {
	if e, ok := s.byID[r.MessageID]; ok {
		return e.addRead(r)
	}
	for _, existing := range s.orphans[r.MessageID] {
		if existing.UserID == r.UserID {
			return false
		}
	}
	s.orphans[r.MessageID] = append(s.orphans[r.MessageID], r)
	return false
}

func (s *Stream) Messages() []View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]View, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, viewOf(e))
	}
	return out
}

func (s *Stream) Get(id string) (View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[id]
	if !ok {
		return View{}, false
	}
	return viewOf(e), true
}

// Before reports whether message a sorts ahead of message b. Ids missing from the stream
// sort first.
func (s *Stream) Before(a, b string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ea, okA := s.byID[a]
	eb, okB := s.byID[b]
	switch {
	case !okB:
		return false
	case !okA:
		return true
	}
	return ea.before(eb)
}

// Has reports whether id is in the stream.
func (s *Stream) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok
}

func (s *Stream) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// CommittedLen counts stored messages, leaving pending ones out.
func (s *Stream) CommittedLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.entries {
		if !e.msg.IsPending() {
			n++
		}
	}
	return n
}

// UnreadFor lists committed messages userID has not read, skipping their own.
func (s *Stream) UnreadFor(userID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, e := range s.entries {
		v := viewOf(e)
		if !v.Pending && v.IsUnread(userID) {
			ids = append(ids, v.Message.ID)
		}
	}
	return ids
}

// LastReadBy returns the message userID read most recently.
func (s *Stream) LastReadBy(userID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		id     string
		latest time.Time
		found  bool
	)
	for _, e := range s.entries {
		for _, r := range e.reads {
			if r.UserID != userID {
				continue
			}
			if !found || r.ReadAt.After(latest) {
				id, latest, found = e.msg.ID, r.ReadAt, true
			}
		}
	}
	return id, found
}
