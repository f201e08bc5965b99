package chat

// Bot wording. Format verbs are filled by the flows in dispatch.go and
// appointments.go.
const (
	msgGreeting         = "Hello! I'm your virtual health assistant. Please describe your symptoms so I can help you."
	msgInvalidPatientID = "Please enter a valid 11-digit ID number."
	msgLoginFailed      = "An error occurred while logging in. Please try again."

	msgInvalidAppointmentID = "Please provide a valid Appointment ID number."
	msgAppointmentNotFound  = "Appointment not found. Please check the ID and try again."
	msgAskUpdateID          = "Which appointment would you like to update? Please provide the Appointment ID."
	msgAskCancelID          = "Which appointment would you like to cancel? Please provide the Appointment ID."
	msgFallback             = "I can show your appointments, update or cancel one, or look at new symptoms. Please choose an option below."

	msgWarningsPrefix     = "⚠️ "
	msgTreatmentPrefix    = "📋 Initial recommendations:\n"
	msgNotesPrefix        = "📝 Based on your history:\n"
	msgRecommendDepts     = "Based on your symptoms, I recommend the following departments:"
	msgDepartmentSelected = "You selected %s. Let me check available doctors and their schedules."
	msgDoctorsHeader      = "Here are the available doctors and their next available slots:"
	msgNoDoctors          = "I'm sorry, there are no available doctors at the moment. Please try again later."
	msgNoOpenSlots        = "%s: No open slots"
	msgChooseNewSlot      = "Please select a new time slot for your appointment with %s:"

	msgBooked         = "✅ Your appointment has been successfully created:\nDoctor: %s\nDepartment: %s\nDate: %s\nAppointment ID: %d"
	msgAnythingElse   = "Is there anything else I can help you with?"
	msgUpdated        = "✅ Your appointment has been successfully updated!"
	msgCancelled      = "✅ Your appointment has been successfully cancelled!"
	msgNoAppointments = "You currently have no active appointments."
	msgAppointments   = "Your appointments:"
	msgAppointmentRow = "ID: %d\nDoctor: %s\nDepartment: %s\nDate: %s"
	msgManagePrompt   = "What would you like to do with your appointments?"

	msgDiagnoseFailed = "I'm sorry, I couldn't process your symptoms. Please try again."
	msgDoctorsFailed  = "I'm sorry, I couldn't fetch the doctor information. Please try again."
	msgSlotsFailed    = "I'm sorry, I couldn't fetch the available time slots. Please try again."
	msgBookFailed     = "I'm sorry, I couldn't book the appointment. Please try again."
	msgUpdateFailed   = "I'm sorry, I couldn't update the appointment. Please try again."
	msgCancelFailed   = "I'm sorry, I couldn't cancel the appointment. Please try again."
	msgListFailed     = "I'm sorry, I couldn't retrieve your appointments. Please try again."
)

// Canned messages sent by menu options.
const (
	cmdOtherSymptom    = "I have another symptom to discuss"
	cmdNewSymptom      = "I have a new symptom to discuss"
	cmdUpdate          = "update appointment"
	cmdCancel          = "cancel appointment"
	labelOtherSymptoms = "I have other symptoms"
	labelView          = "View my appointments"
	labelUpdate        = "Update an appointment"
	labelCancel        = "Cancel an appointment"
	labelBookNew       = "Book a new appointment"
)
