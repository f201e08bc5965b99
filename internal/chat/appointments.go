package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiaot623/clinic-assistant/internal/clinic"
	"github.com/xiaot623/clinic-assistant/internal/domain"
	"github.com/xiaot623/clinic-assistant/internal/session"
	"github.com/xiaot623/clinic-assistant/internal/transcript"
)

// slotCatalog is offered for doctors whose availability the backend does not
// report.
var slotCatalog = []string{"9:00", "10:00", "11:00", "14:00", "15:00", "16:00"}

func slotsFor(d domain.Doctor) []string {
	if d.AvailableSlots == nil {
		return slotCatalog
	}
	return d.AvailableSlots
}

// doctorID is the backend id when present, else the 1-based position.
func doctorID(d domain.Doctor, index int) int {
	if d.ID != 0 {
		return d.ID
	}
	return index + 1
}

// CancelAppointment cancels appointment id directly, without the id prompt.
func (a *Assistant) CancelAppointment(ctx context.Context, id int) error {
	st := a.session.Snapshot()
	if !st.LoggedIn() {
		return ErrNotLoggedIn
	}
	a.session.Touch()
	a.begin(st).cancel(ctx, id)
	return nil
}

func (t *turn) selectDepartment(ctx context.Context, dept string) {
	if !t.update(func(st *session.State) { st.Department = dept }) {
		return
	}
	t.say(fmt.Sprintf(msgDepartmentSelected, dept))

	rec, err := t.recommend(ctx, dept)
	if err != nil {
		t.fail(clinic.ExchangeRecommend, err, msgDoctorsFailed)
		return
	}
	if len(rec.AvailableDoctors) == 0 {
		t.say(msgNoDoctors)
		return
	}

	t.say(msgDoctorsHeader)
	date := t.today()
	for i, d := range rec.AvailableDoctors {
		id := doctorID(d, i)
		t.offerSlots(d.Name, slotsFor(d), func(slot string) session.Binding {
			return session.Binding{
				Action:     session.ActionBook,
				Department: dept,
				DoctorID:   id,
				DoctorName: d.Name,
				Date:       date + " " + slot,
			}
		})
	}
}

// offerSlots renders one row of slot buttons under the doctor's name.
func (t *turn) offerSlots(doctor string, slots []string, bind func(slot string) session.Binding) {
	if len(slots) == 0 {
		t.say(fmt.Sprintf(msgNoOpenSlots, doctor))
		return
	}
	options := make([]option, 0, len(slots))
	for _, slot := range slots {
		options = append(options, option{label: slot, binding: bind(slot)})
	}
	t.offer(doctor, transcript.LayoutRow, options)
}

func (t *turn) recommend(ctx context.Context, dept string) (*domain.Recommendation, error) {
	ctx, cancel := t.callContext(ctx)
	defer cancel()
	return t.gateway.RecommendDoctors(ctx, domain.RecommendRequest{
		TCNumber:      t.patientID,
		Department:    dept,
		PreferredDate: t.today(),
	})
}

func (t *turn) book(ctx context.Context, b session.Binding) {
	callCtx, cancel := t.callContext(ctx)
	created, err := t.gateway.CreateAppointment(callCtx, domain.CreateAppointmentRequest{
		TCNumber:        t.patientID,
		Department:      b.Department,
		DoctorID:        b.DoctorID,
		AppointmentDate: b.Date,
	})
	cancel()
	if err != nil {
		t.fail(clinic.ExchangeCreate, err, msgBookFailed)
		return
	}

	appt := created.Appointment()
	var summary domain.PatientSummary
	if !t.update(func(st *session.State) {
		st.Patient.PastAppointments = append(st.Patient.PastAppointments, appt)
		summary = domain.Summarize(st.Patient)
	}) {
		return
	}

	t.say(fmt.Sprintf(msgBooked, appt.Doctor, appt.Department, appt.Date, appt.ID))
	t.say(msgAnythingElse)
	t.offerFollowUp()
	t.render(func(func(session.Binding) string) {
		t.notifier.PatientUpdated(summary)
	})
}

// offerReschedule asks the backend for the department's doctors and offers
// the slots of the appointment's doctor.
func (t *turn) offerReschedule(ctx context.Context, appt domain.Appointment) {
	rec, err := t.recommend(ctx, appt.Department)
	if err != nil {
		t.fail(clinic.ExchangeRecommend, err, msgSlotsFailed)
		return
	}
	if len(rec.AvailableDoctors) == 0 {
		t.say(msgNoDoctors)
		return
	}

	slots := slotCatalog
	for _, d := range rec.AvailableDoctors {
		if strings.EqualFold(d.Name, appt.Doctor) {
			slots = slotsFor(d)
			break
		}
	}

	t.say(fmt.Sprintf(msgChooseNewSlot, appt.Doctor))
	date := t.today()
	t.offerSlots(appt.Doctor, slots, func(slot string) session.Binding {
		return session.Binding{
			Action:        session.ActionReschedule,
			AppointmentID: appt.ID,
			Date:          date + " " + slot,
		}
	})
}

func (t *turn) reschedule(ctx context.Context, b session.Binding) {
	callCtx, cancel := t.callContext(ctx)
	_, err := t.gateway.UpdateAppointment(callCtx, domain.UpdateAppointmentRequest{
		TCNumber:      t.patientID,
		AppointmentID: b.AppointmentID,
		NewDate:       b.Date,
	})
	cancel()
	if err != nil {
		t.fail(clinic.ExchangeUpdate, err, msgUpdateFailed)
		return
	}

	if !t.update(func(st *session.State) {
		for i := range st.Patient.PastAppointments {
			if st.Patient.PastAppointments[i].ID == b.AppointmentID {
				st.Patient.PastAppointments[i].Date = b.Date
			}
		}
		st.Mode = session.ModeNormal
		st.PendingAppointmentID = 0
	}) {
		return
	}

	t.say(msgUpdated)
	t.showAppointments(ctx)
}

func (t *turn) cancel(ctx context.Context, id int) {
	callCtx, cancel := t.callContext(ctx)
	_, err := t.gateway.CancelAppointment(callCtx, domain.CancelAppointmentRequest{
		TCNumber:      t.patientID,
		AppointmentID: id,
	})
	cancel()
	if err != nil {
		t.fail(clinic.ExchangeCancel, err, msgCancelFailed)
		return
	}

	if !t.update(func(st *session.State) {
		kept := st.Patient.PastAppointments[:0]
		for _, appt := range st.Patient.PastAppointments {
			if appt.ID != id {
				kept = append(kept, appt)
			}
		}
		st.Patient.PastAppointments = kept
		st.Mode = session.ModeNormal
		st.PendingAppointmentID = 0
	}) {
		return
	}

	t.say(msgCancelled)
	t.showAppointments(ctx)
}

// showAppointments renders the backend's appointment list and makes it the
// new cache.
func (t *turn) showAppointments(ctx context.Context) {
	callCtx, cancel := t.callContext(ctx)
	appts, err := t.gateway.ListAppointments(callCtx, t.patientID)
	cancel()
	if err != nil {
		t.fail(clinic.ExchangeList, err, msgListFailed)
		return
	}

	if !t.update(func(st *session.State) {
		st.Patient.PastAppointments = append([]domain.Appointment(nil), appts...)
	}) {
		return
	}

	if len(appts) == 0 {
		t.say(msgNoAppointments)
		return
	}

	rows := make([]string, 0, len(appts))
	for _, appt := range appts {
		rows = append(rows, fmt.Sprintf(msgAppointmentRow, appt.ID, appt.Doctor, appt.Department, appt.Date))
	}
	t.say(msgAppointments)
	t.say(strings.Join(rows, "\n\n"))
	t.say(msgManagePrompt)
	t.offer("", transcript.LayoutColumn, []option{
		{label: labelUpdate, binding: send(cmdUpdate)},
		{label: labelCancel, binding: send(cmdCancel)},
		{label: labelBookNew, binding: send(cmdNewSymptom)},
	})
}

// offerFollowUp renders the four-option menu shown after a booking.
func (t *turn) offerFollowUp() {
	t.offer("", transcript.LayoutColumn, []option{
		{label: labelOtherSymptoms, binding: send(cmdOtherSymptom)},
		{label: labelView, binding: session.Binding{Action: session.ActionShowAppointments, Message: labelView}},
		{label: labelUpdate, binding: send(cmdUpdate)},
		{label: labelCancel, binding: send(cmdCancel)},
	})
}

func send(message string) session.Binding {
	return session.Binding{Action: session.ActionSend, Message: message}
}
