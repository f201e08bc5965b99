package session

// Action is what clicking a choice does.
type Action string

const (
	// ActionSend echoes Message as a user turn and dispatches it.
	ActionSend Action = "send"
	// ActionShowAppointments echoes Message and lists appointments.
	ActionShowAppointments Action = "show_appointments"
	// ActionSelectDepartment picks Department and offers its doctors.
	ActionSelectDepartment Action = "select_department"
	// ActionBook books DoctorID in Department at Date.
	ActionBook Action = "book"
	// ActionReschedule moves AppointmentID to Date.
	ActionReschedule Action = "reschedule"
)

// Binding is the behavior behind one rendered choice. Only the fields of
// its Action are set.
type Binding struct {
	Action        Action
	Message       string
	Department    string
	DoctorID      int
	DoctorName    string
	AppointmentID int
	Date          string
}
