package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/xiaot623/clinic-assistant/internal/protocol"
	"github.com/xiaot623/clinic-assistant/internal/transcript"
)

// renderer prints server messages and remembers the options on screen so
// "/N" can be mapped back to a choice id.
type renderer struct {
	out io.Writer

	mu        sync.Mutex
	sessionID string
	loggedIn  bool
	lastSeq   int
	options   []string
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out}
}

// Handle prints one raw server message.
func (r *renderer) Handle(data []byte) error {
	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch base.Type {
	case protocol.TypeHelloAck:
		var msg protocol.HelloAckMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		r.sessionID = msg.SessionID
		r.loggedIn = msg.LoggedIn
		fmt.Fprintf(r.out, "Session established: %s\n", msg.SessionID)

	case protocol.TypeHistory:
		var msg protocol.HistoryMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		r.lastSeq = 0
		r.options = nil
		for _, e := range msg.Entries {
			r.printEntry(e)
		}

	case protocol.TypeEntry:
		var msg protocol.EntryMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		r.printEntry(msg.Entry)

	case protocol.TypeClear:
		r.options = nil
		fmt.Fprintln(r.out, "----------------------------------------")

	case protocol.TypeLoggedIn:
		var msg protocol.LoggedInMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		r.loggedIn = true
		fmt.Fprintf(r.out, "Logged in as %s\n", msg.PatientID)

	case protocol.TypeLoggedOut:
		var msg protocol.LoggedOutMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		r.loggedIn = false
		r.options = nil
		fmt.Fprintf(r.out, "Logged out (%s). Enter your 11-digit ID number to log in.\n", msg.Reason)

	case protocol.TypePatient:
		var msg protocol.PatientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "\n%s\n\n", msg.Summary.String())

	case protocol.TypeAlert:
		var msg protocol.AlertMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "! %s\n", msg.Message)

	case protocol.TypeError:
		var msg protocol.ErrorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "error: %s - %s\n", msg.Code, msg.Message)
	}
	return nil
}

// printEntry skips entries already shown by history.
func (r *renderer) printEntry(e transcript.Entry) {
	if e.Seq <= r.lastSeq {
		return
	}
	r.lastSeq = e.Seq

	speaker := "Assistant"
	if e.Role == transcript.RoleUser {
		speaker = "You"
	}

	if e.Kind != transcript.KindChoices || e.Choices == nil {
		fmt.Fprintf(r.out, "%s: %s\n", speaker, e.Text)
		return
	}

	if e.Choices.Title != "" {
		fmt.Fprintf(r.out, "  %s\n", e.Choices.Title)
	}
	labels := make([]string, 0, len(e.Choices.Options))
	for _, c := range e.Choices.Options {
		r.options = append(r.options, c.ID)
		labels = append(labels, fmt.Sprintf("[/%d] %s", len(r.options), c.Label))
	}
	sep := "  "
	if e.Choices.Layout == transcript.LayoutColumn {
		sep = "\n    "
	}
	fmt.Fprintf(r.out, "    %s\n", strings.Join(labels, sep))
}

// Option returns the choice id shown as "/n".
func (r *renderer) Option(n int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n < 1 || n > len(r.options) {
		return "", false
	}
	return r.options[n-1], true
}

// LoggedIn reports whether the server considers the session logged in.
func (r *renderer) LoggedIn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loggedIn
}

// SessionID returns the id assigned by hello_ack.
func (r *renderer) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}
