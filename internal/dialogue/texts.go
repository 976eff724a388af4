package dialogue

import (
	"regexp"
	"strings"

	"github.com/hackgods/whatsapp-hospital-bot/internal/messaging"
	"github.com/hackgods/whatsapp-hospital-bot/internal/session"
)

const (
	langEnglish   = "English"
	langMalayalam = "മലയാളം"

	menuBook     = "Book Appointment"
	menuContact  = "Contact Hospital"
	menuLocation = "Location"

	actionConfirm = "Confirm Booking"
	actionCancel  = "Cancel"

	labelMorning = "Morning"
	labelEvening = "Evening"
)

// reply ids
const (
	idMenuBook     = "menu_book"
	idMenuContact  = "menu_contact"
	idMenuLocation = "menu_location"
	idConfirm      = "confirm_booking"
	idCancel       = "cancel_booking"
	idMorning      = "tod_morning"
	idEvening      = "tod_evening"

	prefixDepartment = "dept_"
	prefixDoctor     = "doc_"
	prefixDate       = "date_"
	prefixSlot       = "slot_"
)

const (
	msgChooseLanguage          = "Please select your language 👇"
	msgChooseDepartment        = "Please choose a department first 👇"
	msgChooseDoctor            = "Please choose a doctor 👇"
	msgChooseDate              = "Please choose a date 👇"
	msgMorningOrEvening        = "Do you prefer a morning or an evening slot?"
	msgAskName                 = "Great! Please enter the patient's name:"
	msgNameTooShort            = "Please type the patient's full name."
	msgAgeNotTyped             = "Please type the patient's age as a number, e.g. 34."
	msgAgeInvalid              = "Please enter a valid age between 1 and 99."
	msgTroubleConnecting       = "Sorry, I'm having trouble connecting right now. Please try again in a moment."
	msgHandoff                 = "I've passed your question to our team 🙋 A staff member will reply here shortly."
	msgSlotTaken               = "Sorry, that slot was just booked by someone else. Please choose another date 👇"
	msgBookingCancelled        = "Booking cancelled. Type 'Hi' anytime to start again."
	msgReminderPrompt          = "Please reply 1 to confirm or 2 to reschedule."
	msgReminderConfirmed       = "Thank you for confirming 👍 See you at your appointment!"
	msgReminderCancelled       = "Your appointment has been cancelled and the slot released. Would you like to book a new time?"
	msgReminderNothingToCancel = "There is no active appointment to cancel. Would you like to book a new time?"
	msgGreeting                = "Hello 👋 How can we help you today?"
)

func welcome(lang session.Language, hospital string) string {
	if lang == session.LanguageMalayalam {
		return hospital + "ലേക്ക് സ്വാഗതം 👋\nഎങ്ങനെ സഹായിക്കാം?"
	}
	return "Welcome to " + hospital + " 👋\nHow can we help you today?"
}

func mainMenu() []messaging.Button {
	return []messaging.Button{
		{ID: idMenuBook, Title: menuBook},
		{ID: idMenuContact, Title: menuContact},
		{ID: idMenuLocation, Title: menuLocation},
	}
}

var resetKeywords = map[string]bool{
	"hi": true, "hii": true, "hai": true, "hello": true, "helo": true, "hey": true,
	"menu": true, "reset": true, "start": true, "restart": true, "0": true,
	"namaste": true, "namaskaram": true,
	"ഹായ്": true, "ഹലോ": true, "നമസ്കാരം": true,
}

var (
	bookingIntentRe = regexp.MustCompile(`(?i)\b(?:book|booking|appointment|appoint|consult|consultation|schedule|see a doctor)\b`)
	availabilityRe  = regexp.MustCompile(`(?i)\b(?:available|availability|open|free|slots?)\b`)
	relativeDayRe   = regexp.MustCompile(`(?i)\b(?:today|tomorrow|innu|naale|nale)\b|നാളെ|ഇന്ന്`)
	greetingRe      = regexp.MustCompile(`(?i)^(?:good\s+(?:morning|afternoon|evening|night)|thanks|thank\s*(?:you|u)|how are you|ok(?:ay)?|nandi|നന്ദി)\b`)
	suggestsBooking = regexp.MustCompile(`(?i)\b(?:doctor|dr|appointment|book|consult|visit|specialist)\b`)
	confirmRe       = regexp.MustCompile(`(?i)^(?:confirm(?:\s+booking)?|yes|y|ok(?:ay)?)$`)
	cancelRe        = regexp.MustCompile(`(?i)^(?:cancel|no|n)$`)
	morningRe       = regexp.MustCompile(`(?i)\b(?:morning|am|forenoon|raavile|ravile)\b|രാവിലെ`)
	eveningRe       = regexp.MustCompile(`(?i)\b(?:evening|afternoon|pm|night|vaikittu|vaikunneram)\b|വൈകിട്ട്|ഉച്ച`)
	digitsRe        = regexp.MustCompile(`^\d+$`)
)

// clean lowercases text and drops surrounding whitespace and punctuation.
func clean(text string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(text)), " .!?,")
}

func isResetKeyword(text string) bool {
	return resetKeywords[clean(text)]
}

func isBookAction(in messaging.Inbound, text string) bool {
	return in.ReplyID == idMenuBook || clean(text) == strings.ToLower(menuBook)
}
