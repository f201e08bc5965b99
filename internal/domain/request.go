package domain

// DiagnoseRequest is the body of POST /patient/diagnose.
type DiagnoseRequest struct {
	TCNumber string `json:"tc_number"`
	Symptoms string `json:"symptoms"`
	Severity string `json:"severity"`
	Duration string `json:"duration"`
}

// Diagnosis is the clinic API's reading of a symptom description.
type Diagnosis struct {
	Warnings               []string `json:"warnings"`
	InitialTreatment       []string `json:"initial_treatment"`
	RecommendedDepartments []string `json:"recommended_departments"`
	PatientSpecificNotes   []string `json:"patient_specific_notes,omitempty"`
}

// RecommendRequest is the body of POST /patient/recommend.
type RecommendRequest struct {
	TCNumber      string `json:"tc_number"`
	Department    string `json:"department"`
	PreferredDate string `json:"preferred_date"`
}

// Recommendation lists the doctors the backend offers for a department.
type Recommendation struct {
	AvailableDoctors []Doctor `json:"available_doctors"`
}

// Doctor is one offered doctor. AvailableSlots is nil when the backend does
// not report availability and empty when it reports none.
type Doctor struct {
	ID             int          `json:"id,omitempty"`
	Name           string       `json:"name"`
	Specialization string       `json:"specialization,omitempty"`
	PastVisit      *Appointment `json:"past_visit,omitempty"`
	AvailableSlots []string     `json:"available_slots"`
}

// CreateAppointmentRequest is the body of POST /appointment/create.
type CreateAppointmentRequest struct {
	TCNumber        string `json:"tc_number"`
	Department      string `json:"department"`
	DoctorID        int    `json:"doctor_id"`
	AppointmentDate string `json:"appointment_date"`
}

// CreatedAppointment is the backend's confirmation of a booking.
type CreatedAppointment struct {
	Success         bool   `json:"success"`
	AppointmentID   int    `json:"appointment_id"`
	Department      string `json:"department"`
	AppointmentDate string `json:"appointment_date"`
	DoctorName      string `json:"doctor_name"`
}

// Appointment converts the confirmation into a cache record.
func (c *CreatedAppointment) Appointment() Appointment {
	return Appointment{
		ID:         c.AppointmentID,
		Department: c.Department,
		Date:       c.AppointmentDate,
		Doctor:     c.DoctorName,
	}
}

// UpdateAppointmentRequest is the body of PUT /appointment/update.
type UpdateAppointmentRequest struct {
	TCNumber      string `json:"tc_number"`
	AppointmentID int    `json:"appointment_id"`
	NewDate       string `json:"new_date"`
}

// CancelAppointmentRequest is the body of DELETE /appointment/cancel.
type CancelAppointmentRequest struct {
	TCNumber      string `json:"tc_number"`
	AppointmentID int    `json:"appointment_id"`
}

// Confirmation is the generic {success, message} reply of update and cancel.
type Confirmation struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// AppointmentList is the body of GET /patient/{id}/appointments.
type AppointmentList struct {
	Appointments []Appointment `json:"appointments"`
}
