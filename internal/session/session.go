// Package session holds the client-side state of one patient conversation.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/xiaot623/clinic-assistant/internal/domain"
)

// Mode is the kind of free text the dispatcher expects next.
type Mode string

const (
	ModeNormal           Mode = "normal"
	ModeAwaitingUpdateID Mode = "awaiting-update-id"
	ModeAwaitingCancelID Mode = "awaiting-cancel-id"
)

// ErrInvalidPatientID is returned for identifiers that are not 11 digits.
var ErrInvalidPatientID = errors.New("patient id must be exactly 11 digits")

var validate = validator.New()

type credentials struct {
	PatientID string `validate:"required,len=11,number"`
}

// ValidatePatientID checks the identifier format without any network call.
func ValidatePatientID(id string) error {
	if err := validate.Struct(credentials{PatientID: id}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPatientID, err)
	}
	return nil
}

// State is everything the dispatcher reads or mutates between turns.
type State struct {
	PatientID            string
	Patient              *domain.Patient
	Department           string
	PendingAppointmentID int // 0 means none
	Mode                 Mode
	LastActivity         time.Time

	// Generation identifies one login. It is zero while logged out and
	// changes on every login.
	Generation uint64
}

// LoggedIn reports whether a patient is attached.
func (s State) LoggedIn() bool {
	return s.Patient != nil
}

// Session owns the State of one conversation, its choice bindings and its
// inactivity timer.
type Session struct {
	ID string

	mu       sync.Mutex
	state    State
	gen      uint64
	bindings map[string]Binding
	idle     *idleTimer
	now      func() time.Time
}

// New creates a logged-out session. onExpire runs on its own goroutine when
// the session stays idle for idleTimeout while logged in.
func New(id string, idleTimeout time.Duration, onExpire func()) *Session {
	return &Session{
		ID:       id,
		state:    State{Mode: ModeNormal},
		bindings: make(map[string]Binding),
		idle:     newIdleTimer(idleTimeout, onExpire),
		now:      time.Now,
	}
}

// Login attaches a patient, resets every flow and arms the idle timer.
func (s *Session) Login(patientID string, patient *domain.Patient) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	s.state = State{
		PatientID:    patientID,
		Patient:      patient,
		Mode:         ModeNormal,
		LastActivity: s.now(),
		Generation:   s.gen,
	}
	s.bindings = make(map[string]Binding)
	s.idle.reset()
}

// Logout detaches the patient and stops the idle timer. It reports whether a
// patient was logged in.
func (s *Session) Logout() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logout()
}

// LogoutIf logs out only while login gen is still the current one, and
// reports whether it did.
func (s *Session) LogoutIf(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen == 0 || s.state.Generation != gen {
		return false
	}
	return s.logout()
}

func (s *Session) logout() bool {
	wasLoggedIn := s.state.LoggedIn()
	s.state = State{Mode: ModeNormal}
	s.bindings = make(map[string]Binding)
	s.idle.stop()
	return wasLoggedIn
}

// Touch records activity and re-arms the idle timer. It does nothing while
// logged out and reports whether the timer was re-armed.
func (s *Session) Touch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.LoggedIn() {
		return false
	}
	s.state.LastActivity = s.now()
	s.idle.reset()
	return true
}

// IdleArmed reports whether the inactivity timer is pending.
func (s *Session) IdleArmed() bool {
	return s.idle.armed()
}

// Snapshot returns a deep copy of the state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state
	st.Patient = st.Patient.Clone()
	return st
}

// Update mutates the state under the session lock. fn must not block.
func (s *Session) Update(fn func(st *State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

// Within runs fn under the session lock if login gen is still the current
// one, and reports whether it ran. fn gets a bind that registers choices for
// that login; it must not call other Session methods.
func (s *Session) Within(gen uint64, fn func(bind func(Binding) string)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen == 0 || s.state.Generation != gen {
		return false
	}
	fn(s.bind)
	return true
}

// Bind registers what a choice does and returns its id.
func (s *Session) Bind(b Binding) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bind(b)
}

func (s *Session) bind(b Binding) string {
	id := uuid.NewString()
	s.bindings[id] = b
	return id
}

// Binding resolves a choice id.
func (s *Session) Binding(id string) (Binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[id]
	return b, ok
}

// Close stops the idle timer without touching the state.
func (s *Session) Close() {
	s.idle.stop()
}
