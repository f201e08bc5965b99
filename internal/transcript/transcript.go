// Package transcript keeps the append-only conversation log of a session.
package transcript

import (
	"sync"
	"time"
)

// Role identifies who produced an entry.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Kind is the shape of an entry.
type Kind string

const (
	KindText    Kind = "text"
	KindChoices Kind = "choices"
)

// Layout controls how a choice group is laid out by the client.
type Layout string

const (
	LayoutRow    Layout = "row"
	LayoutColumn Layout = "column"
)

// Choice is one clickable option. What a click does is not part of the
// transcript; the owner of the log resolves ID to a behavior.
type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ChoiceGroup is a titled group of options rendered together.
type ChoiceGroup struct {
	Title   string   `json:"title,omitempty"`
	Layout  Layout   `json:"layout"`
	Options []Choice `json:"options"`
}

// Entry is one turn of the transcript.
type Entry struct {
	Seq       int          `json:"seq"`
	Role      Role         `json:"role"`
	Kind      Kind         `json:"kind"`
	Text      string       `json:"text,omitempty"`
	Choices   *ChoiceGroup `json:"choices,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Renderer appends turns to a conversation.
type Renderer interface {
	AppendText(role Role, text string)
	AppendChoices(group ChoiceGroup)
}

// Sink observes a Log. Calls arrive in append order.
type Sink interface {
	OnEntry(entry Entry)
	OnClear()
}

// Log is an in-memory, append-only transcript. Entries are never edited or
// removed except by Clear.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	seq     int
	sinks   []Sink
	now     func() time.Time
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{now: time.Now}
}

// AddSink registers a sink for future entries.
func (l *Log) AddSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

// AppendText appends a plain text turn.
func (l *Log) AppendText(role Role, text string) {
	l.append(Entry{Role: role, Kind: KindText, Text: text})
}

// AppendChoices appends a bot turn holding a group of options.
func (l *Log) AppendChoices(group ChoiceGroup) {
	if group.Layout == "" {
		group.Layout = LayoutRow
	}
	group.Options = append([]Choice(nil), group.Options...)
	l.append(Entry{Role: RoleBot, Kind: KindChoices, Choices: &group})
}

// sinks are called with the lock held so every sink sees the same order.
func (l *Log) append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	e.Seq = l.seq
	e.CreatedAt = l.now()
	l.entries = append(l.entries, e)
	for _, s := range l.sinks {
		s.OnEntry(e)
	}
}

// Clear drops every entry. Sequence numbers keep increasing across clears.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
	for _, s := range l.sinks {
		s.OnClear()
	}
}

// Entries returns a copy of the current entries.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Last returns the newest entry.
func (l *Log) Last() (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}
