package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xiaot623/clinic-assistant/internal/clinic"
	"github.com/xiaot623/clinic-assistant/internal/domain"
	"github.com/xiaot623/clinic-assistant/internal/session"
	"github.com/xiaot623/clinic-assistant/internal/transcript"
)

const (
	diagnoseSeverity = "moderate"
	diagnoseDuration = "recent"
)

// Submit handles one line of user text. Empty text is ignored.
func (a *Assistant) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	st := a.session.Snapshot()
	if !st.LoggedIn() {
		return ErrNotLoggedIn
	}

	t := a.begin(st)
	t.appendText(transcript.RoleUser, text)
	a.session.Touch()
	a.countTurn(string(st.Mode))

	switch st.Mode {
	case session.ModeAwaitingUpdateID:
		t.handleUpdateID(ctx, st, text)
	case session.ModeAwaitingCancelID:
		t.handleCancelID(ctx, st, text)
	default:
		t.handleInput(ctx, text)
	}
	return nil
}

// Select runs the behavior bound to a rendered choice.
func (a *Assistant) Select(ctx context.Context, choiceID string) error {
	st := a.session.Snapshot()
	if !st.LoggedIn() {
		return ErrNotLoggedIn
	}
	b, ok := a.session.Binding(choiceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChoice, choiceID)
	}

	t := a.begin(st)
	a.session.Touch()
	a.countTurn("choice")

	switch b.Action {
	case session.ActionSend:
		t.appendText(transcript.RoleUser, b.Message)
		t.handleInput(ctx, b.Message)
	case session.ActionShowAppointments:
		t.appendText(transcript.RoleUser, b.Message)
		t.showAppointments(ctx)
	case session.ActionSelectDepartment:
		t.selectDepartment(ctx, b.Department)
	case session.ActionBook:
		t.book(ctx, b)
	case session.ActionReschedule:
		t.reschedule(ctx, b)
	default:
		return fmt.Errorf("%w: action %q", ErrUnknownChoice, b.Action)
	}
	return nil
}

// handleInput is normal-mode handling. Menu options land here regardless of
// the current mode.
func (t *turn) handleInput(ctx context.Context, text string) {
	lower := strings.ToLower(text)
	var department string
	if !t.update(func(st *session.State) {
		if strings.Contains(lower, "symptom") {
			st.Department = ""
		}
		department = st.Department
	}) {
		return
	}

	if department == "" {
		t.diagnose(ctx, text)
		return
	}

	switch {
	case strings.Contains(lower, "show appointments"), strings.Contains(lower, "view appointments"):
		t.showAppointments(ctx)
	case strings.Contains(lower, "update appointment"):
		t.setMode(session.ModeAwaitingUpdateID)
		t.say(msgAskUpdateID)
	case strings.Contains(lower, "cancel appointment"):
		t.setMode(session.ModeAwaitingCancelID)
		t.say(msgAskCancelID)
	default:
		t.say(msgFallback)
		t.offerFollowUp()
	}
}

func (t *turn) diagnose(ctx context.Context, symptoms string) {
	ctx, cancel := t.callContext(ctx)
	defer cancel()

	diag, err := t.gateway.Diagnose(ctx, domain.DiagnoseRequest{
		TCNumber: t.patientID,
		Symptoms: symptoms,
		Severity: diagnoseSeverity,
		Duration: diagnoseDuration,
	})
	if err != nil {
		t.fail(clinic.ExchangeDiagnose, err, msgDiagnoseFailed)
		return
	}

	if len(diag.Warnings) > 0 {
		t.say(msgWarningsPrefix + strings.Join(diag.Warnings, "\n"))
	}
	if len(diag.InitialTreatment) > 0 {
		t.say(msgTreatmentPrefix + strings.Join(diag.InitialTreatment, "\n"))
	}
	if len(diag.PatientSpecificNotes) > 0 {
		t.say(msgNotesPrefix + strings.Join(diag.PatientSpecificNotes, "\n"))
	}

	t.say(msgRecommendDepts)
	if len(diag.RecommendedDepartments) == 0 {
		return
	}
	options := make([]option, 0, len(diag.RecommendedDepartments))
	for _, dept := range diag.RecommendedDepartments {
		options = append(options, option{
			label:   dept,
			binding: session.Binding{Action: session.ActionSelectDepartment, Department: dept},
		})
	}
	t.offer("", transcript.LayoutRow, options)
}

// handleUpdateID expects the id of a cached appointment and offers new slots
// for it. The mode stays until the update succeeds.
func (t *turn) handleUpdateID(ctx context.Context, st session.State, text string) {
	appt, ok := t.lookupAppointment(st, text)
	if !ok {
		return
	}
	if !t.update(func(s *session.State) { s.PendingAppointmentID = appt.ID }) {
		return
	}
	t.offerReschedule(ctx, appt)
}

// handleCancelID expects the id of a cached appointment and cancels it.
func (t *turn) handleCancelID(ctx context.Context, st session.State, text string) {
	appt, ok := t.lookupAppointment(st, text)
	if !ok {
		return
	}
	if !t.update(func(s *session.State) { s.PendingAppointmentID = appt.ID }) {
		return
	}
	t.cancel(ctx, appt.ID)
}

// lookupAppointment parses text as an appointment id and finds it in the
// cache, rendering the re-prompt or not-found message on failure.
func (t *turn) lookupAppointment(st session.State, text string) (domain.Appointment, bool) {
	id, err := strconv.Atoi(text)
	if err != nil {
		t.say(msgInvalidAppointmentID)
		return domain.Appointment{}, false
	}
	if id <= 0 {
		t.say(msgAppointmentNotFound)
		return domain.Appointment{}, false
	}
	appt, ok := st.Patient.FindAppointment(id)
	if !ok {
		t.say(msgAppointmentNotFound)
		return domain.Appointment{}, false
	}
	return appt, true
}

func (t *turn) setMode(m session.Mode) {
	t.update(func(st *session.State) { st.Mode = m })
}
