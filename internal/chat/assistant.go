// Package chat implements the conversation of one patient session: login and
// logout, the free-text dispatcher and the appointment flows driven by
// clickable choices.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/clinic-assistant/internal/clinic"
	"github.com/xiaot623/clinic-assistant/internal/domain"
	"github.com/xiaot623/clinic-assistant/internal/metrics"
	"github.com/xiaot623/clinic-assistant/internal/session"
	"github.com/xiaot623/clinic-assistant/internal/transcript"
)

var (
	// ErrNotLoggedIn is returned for turns sent without a patient.
	ErrNotLoggedIn = errors.New("no patient is logged in")
	// ErrUnknownChoice is returned when a choice id has no binding.
	ErrUnknownChoice = errors.New("unknown choice")
)

// Logout reasons reported to the Notifier.
const (
	ReasonUser        = "user"
	ReasonInactivity  = "inactivity"
	ReasonDisconnect  = "disconnect"
	ReasonLoginFailed = "login_failed"
)

// Gateway is the clinic API as seen by the dispatcher. *clinic.Client
// implements it.
type Gateway interface {
	FetchHistory(ctx context.Context, patientID string) (*domain.Patient, error)
	Diagnose(ctx context.Context, req domain.DiagnoseRequest) (*domain.Diagnosis, error)
	RecommendDoctors(ctx context.Context, req domain.RecommendRequest) (*domain.Recommendation, error)
	CreateAppointment(ctx context.Context, req domain.CreateAppointmentRequest) (*domain.CreatedAppointment, error)
	UpdateAppointment(ctx context.Context, req domain.UpdateAppointmentRequest) (*domain.Confirmation, error)
	CancelAppointment(ctx context.Context, req domain.CancelAppointmentRequest) (*domain.Confirmation, error)
	ListAppointments(ctx context.Context, patientID string) ([]domain.Appointment, error)
}

// Transcript is where turns are rendered.
type Transcript interface {
	transcript.Renderer
	Clear()
}

// Notifier receives the events that live outside the transcript.
type Notifier interface {
	LoggedIn(patientID string)
	LoggedOut(reason string)
	PatientUpdated(summary domain.PatientSummary)
	Alert(message string)
}

// Config configures an Assistant.
type Config struct {
	SessionID   string
	IdleTimeout time.Duration
	CallTimeout time.Duration // per clinic exchange; zero means no limit
}

// Assistant runs the conversation of one session. All methods are safe for
// concurrent use; concurrent turns resolve independently.
type Assistant struct {
	session     *session.Session
	gateway     Gateway
	transcript  Transcript
	notifier    Notifier
	logger      *zap.Logger
	metrics     *metrics.Collector
	callTimeout time.Duration
	now         func() time.Time
}

// New creates a logged-out assistant. logger and m may be nil.
func New(cfg Config, gw Gateway, tr Transcript, n Notifier, logger *zap.Logger, m *metrics.Collector) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Assistant{
		gateway:     gw,
		transcript:  tr,
		notifier:    n,
		logger:      logger.With(zap.String("session_id", cfg.SessionID)),
		metrics:     m,
		callTimeout: cfg.CallTimeout,
		now:         time.Now,
	}
	a.session = session.New(cfg.SessionID, cfg.IdleTimeout, a.expire)
	return a
}

// SessionID returns the id of the underlying session.
func (a *Assistant) SessionID() string {
	return a.session.ID
}

// State returns a copy of the session state.
func (a *Assistant) State() session.State {
	return a.session.Snapshot()
}

// Login validates patientID, fetches the patient's history and starts a
// fresh conversation. Invalid ids are rejected without a network call. A
// failed fetch leaves the session logged out, even if another patient was
// logged in before.
func (a *Assistant) Login(ctx context.Context, patientID string) error {
	patientID = strings.TrimSpace(patientID)
	if err := session.ValidatePatientID(patientID); err != nil {
		a.notifier.Alert(msgInvalidPatientID)
		a.countLogin("invalid")
		return err
	}
	prev := a.session.Snapshot()

	ctx, cancel := a.callContext(ctx)
	defer cancel()

	patient, err := a.gateway.FetchHistory(ctx, patientID)
	if err != nil {
		a.logger.Warn("clinic exchange failed",
			zap.String("exchange", clinic.ExchangeHistory),
			zap.Error(err))
		if prev.LoggedIn() && a.session.LogoutIf(prev.Generation) {
			a.loggedOut(true, ReasonLoginFailed)
		}
		a.notifier.Alert(msgLoginFailed)
		a.countLogin("failed")
		return fmt.Errorf("fetch history: %w", err)
	}
	if patient == nil {
		patient = &domain.Patient{}
	}

	a.session.Login(patientID, patient)
	a.transcript.Clear()

	st := a.session.Snapshot()
	t := a.begin(st)
	t.say(msgGreeting)
	t.render(func(func(session.Binding) string) {
		a.notifier.LoggedIn(patientID)
		if len(st.Patient.PastAppointments) > 0 {
			a.notifier.PatientUpdated(domain.Summarize(st.Patient))
		}
	})
	a.countLogin("success")
	a.logger.Info("patient logged in")
	return nil
}

// Logout ends the conversation. It is idempotent.
func (a *Assistant) Logout(reason string) {
	a.loggedOut(a.session.Logout(), reason)
}

func (a *Assistant) loggedOut(wasLoggedIn bool, reason string) {
	a.transcript.Clear()
	a.notifier.LoggedOut(reason)

	if wasLoggedIn {
		if a.metrics != nil {
			a.metrics.LogoutsTotal.WithLabelValues(reason).Inc()
		}
		a.logger.Info("patient logged out", zap.String("reason", reason))
	}
}

// Touch records user activity. It returns false while logged out.
func (a *Assistant) Touch() bool {
	return a.session.Touch()
}

// Notify appends a bot notice to the transcript.
func (a *Assistant) Notify(text string) {
	a.transcript.AppendText(transcript.RoleBot, text)
}

// Close logs out a logged-in patient and stops the idle timer.
func (a *Assistant) Close() {
	if a.session.Snapshot().LoggedIn() {
		a.Logout(ReasonDisconnect)
	}
	a.session.Close()
}

func (a *Assistant) expire() {
	a.logger.Info("session idle timeout")
	a.Logout(ReasonInactivity)
}

// turn is one user action, tied to the login it started under. Everything
// it renders is dropped once that login has ended.
type turn struct {
	*Assistant
	gen       uint64
	patientID string
}

func (a *Assistant) begin(st session.State) *turn {
	return &turn{Assistant: a, gen: st.Generation, patientID: st.PatientID}
}

// render runs fn under the session lock while the turn's login is current.
func (t *turn) render(fn func(bind func(session.Binding) string)) bool {
	if t.session.Within(t.gen, fn) {
		return true
	}
	t.logger.Debug("login ended during turn, dropping output")
	return false
}

func (t *turn) say(text string) {
	t.appendText(transcript.RoleBot, text)
}

func (t *turn) appendText(role transcript.Role, text string) {
	t.render(func(func(session.Binding) string) {
		t.transcript.AppendText(role, text)
	})
}

// offer renders a group of options and binds each to its behavior.
func (t *turn) offer(title string, layout transcript.Layout, options []option) {
	t.render(func(bind func(session.Binding) string) {
		choices := make([]transcript.Choice, 0, len(options))
		for _, o := range options {
			choices = append(choices, transcript.Choice{
				ID:    bind(o.binding),
				Label: o.label,
			})
		}
		t.transcript.AppendChoices(transcript.ChoiceGroup{
			Title:   title,
			Layout:  layout,
			Options: choices,
		})
	})
}

type option struct {
	label   string
	binding session.Binding
}

// update mutates the state if the turn's login is still current, and reports
// whether it was.
func (t *turn) update(fn func(st *session.State)) bool {
	applied := false
	t.session.Update(func(st *session.State) {
		if st.Generation != t.gen {
			return
		}
		fn(st)
		applied = true
	})
	if !applied {
		t.logger.Debug("login ended during turn, dropping result")
	}
	return applied
}

// fail logs an exchange error and renders its apology.
func (t *turn) fail(exchange string, err error, apology string) {
	t.logger.Warn("clinic exchange failed",
		zap.String("exchange", exchange),
		zap.Error(err))
	t.say(apology)
}

func (a *Assistant) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.callTimeout)
}

func (a *Assistant) today() string {
	return a.now().Format("2006-01-02")
}

func (a *Assistant) countLogin(outcome string) {
	if a.metrics != nil {
		a.metrics.LoginsTotal.WithLabelValues(outcome).Inc()
	}
}

func (a *Assistant) countTurn(mode string) {
	if a.metrics != nil {
		a.metrics.TurnsTotal.WithLabelValues(mode).Inc()
	}
}
