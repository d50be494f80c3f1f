// Package chat holds the visible message list of the active zone. It merges
// optimistic local sends with the authoritative message stream and keeps
// the list free of duplicates.
package chat

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/protocol"
)

const (
	// TempPrefix marks client-generated message ids.
	TempPrefix = "temp-"

	// ReconcileWindow is the maximum createdAt distance between an optimistic
	// entry and the authoritative message that replaces it.
	ReconcileWindow = 5 * time.Second
)

// Outcome describes what Append did with a message.
type Outcome int

const (
	Duplicate Outcome = iota
	Reconciled
	Appended
)

func (o Outcome) String() string {
	switch o {
	case Duplicate:
		return "duplicate"
	case Reconciled:
		return "reconciled"
	case Appended:
		return "appended"
	default:
		return "Outcome(" + strconv.Itoa(int(o)) + ")"
	}
}

// Entry is one visible message.
type Entry struct {
	protocol.Message
	FromUser bool
}

// Temp reports whether the entry is an unconfirmed optimistic send.
func (e Entry) Temp() bool {
	return IsTemp(e.ID)
}

// IsTemp reports whether id was generated by SendOptimistic.
func IsTemp(id protocol.ID) bool {
	return strings.HasPrefix(string(id), TempPrefix)
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the clock used for optimistic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithWindow overrides ReconcileWindow.
func WithWindow(d time.Duration) Option {
	return func(s *Store) { s.window = d }
}

// Store is the ordered message list for one zone. It is not safe for
// concurrent use; the owner serializes access.
type Store struct {
	local   protocol.Sender
	entries []Entry
	window  time.Duration
	now     func() time.Time
}

// NewStore creates an empty Store for the local user.
func NewStore(local protocol.Sender, opts ...Option) *Store {
	s := &Store{
		local:  local,
		window: ReconcileWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed replaces the list with a zone snapshot. Repeated ids keep their
// first occurrence.
func (s *Store) Seed(msgs []protocol.Message) {
	msgs = lo.UniqBy(msgs, func(m protocol.Message) protocol.ID { return m.ID })
	s.entries = lo.Map(msgs, func(m protocol.Message, _ int) Entry { return s.entry(m) })
}

// Append merges an authoritative message:
//  1. an entry with the same id already exists: no-op;
//  2. a temp entry from the same sender with the same content created
//     within the reconcile window exists: it is replaced in place;
//  3. otherwise the message is appended.
func (s *Store) Append(msg protocol.Message) Outcome {
	if s.Has(msg.ID) {
		return Duplicate
	}
	if _, i, ok := lo.FindIndexOf(s.entries, func(e Entry) bool { return s.counterpart(e, msg) }); ok {
		s.entries[i] = s.entry(msg)
		return Reconciled
	}
	s.entries = append(s.entries, s.entry(msg))
	return Appended
}

// SendOptimistic appends a temp entry for content sent by the local user and
// returns it. Its id is the rollback handle.
func (s *Store) SendOptimistic(content string) Entry {
	now := s.now()
	id := protocol.ID(TempPrefix + strconv.FormatInt(now.UnixMilli(), 10))
	if s.Has(id) {
		id = protocol.ID(string(id) + "-" + uuid.NewString()[:8])
	}

	e := Entry{
		Message: protocol.Message{
			ID:        id,
			Content:   content,
			SenderID:  s.local.ID,
			CreatedAt: now,
			Sender:    s.local,
		},
		FromUser: true,
	}
	s.entries = append(s.entries, e)
	return e
}

// Rollback removes the temp entry tempID. Authoritative entries are never
// removed. It reports whether an entry was removed.
func (s *Store) Rollback(tempID protocol.ID) bool {
	if !IsTemp(tempID) {
		return false
	}
	_, i, ok := lo.FindIndexOf(s.entries, func(e Entry) bool { return e.ID == tempID })
	if !ok {
		return false
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	return true
}

// Resync applies a fetched history page. History replaces the list; entries
// held before that history lacks are then re-applied in their original
// order. Authoritative ones go through Append, pending temps are kept unless
// history already confirmed them.
func (s *Store) Resync(history []protocol.Message) {
	prev := s.entries
	s.Seed(history)

	for _, e := range prev {
		if !e.Temp() {
			s.Append(e.Message)
			continue
		}
		confirmed := lo.ContainsBy(s.entries, func(h Entry) bool {
			return !h.Temp() && s.counterpart(e, h.Message)
		})
		if !confirmed {
			s.entries = append(s.entries, e)
		}
	}
}

// Messages returns a copy of the visible list.
func (s *Store) Messages() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of visible entries.
func (s *Store) Len() int {
	return len(s.entries)
}

// Pending returns the number of unconfirmed optimistic entries.
func (s *Store) Pending() int {
	return lo.CountBy(s.entries, func(e Entry) bool { return e.Temp() })
}

// Reset empties the list.
func (s *Store) Reset() {
	s.entries = nil
}

// Has reports whether an entry with id is visible.
func (s *Store) Has(id protocol.ID) bool {
	return lo.ContainsBy(s.entries, func(e Entry) bool { return e.ID == id })
}

// counterpart reports whether msg confirms the temp entry e.
func (s *Store) counterpart(e Entry, msg protocol.Message) bool {
	if !e.Temp() || e.SenderID != msg.SenderID || e.Content != msg.Content {
		return false
	}
	d := e.CreatedAt.Sub(msg.CreatedAt)
	if d < 0 {
		d = -d
	}
	return d < s.window
}

func (s *Store) entry(m protocol.Message) Entry {
	return Entry{Message: m, FromUser: !s.local.ID.IsZero() && m.SenderID == s.local.ID}
}
