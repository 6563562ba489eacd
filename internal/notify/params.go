package notify

import (
	"strings"
	"time"

	"github.com/planner/internal/model"
)

type Kind string

const (
	KindEventCreated    Kind = "event-created"
	KindEventUpdated    Kind = "event-updated"
	KindTodoCreated     Kind = "todo-created"
	KindGroupInvitation Kind = "group-invitation"
	KindEventReminder   Kind = "event-reminder"
	KindDueToday        Kind = "due-today"
	KindDueTomorrow     Kind = "due-tomorrow"
	KindOTP             Kind = "otp-code"
)

const (
	ReminderText = "This is a reminder that your event starts in 5 minutes!"
	dateFormat   = "Jan 2, 2006"
	timeFormat   = "15:04"
)

// Subject — то, о чём письмо: событие/задача или группа.
type Subject struct {
	Event *model.Event
	Group *model.Group
	// Extra дописывается в параметры шаблона (например, код OTP).
	Extra map[string]string
}

// Message — одно письмо одному адресату.
type Message struct {
	Kind    Kind
	To      string
	Subject string
	Params  map[string]string
}

func or(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// BuildParams собирает параметры шаблона для адресата to.
func BuildParams(kind Kind, subj Subject, to, actor string, loc *time.Location) map[string]string {
	p := map[string]string{
		"to_email":   to,
		"user_email": to,
		"email":      to,
		"reply_to":   to,
	}
	name := or(actor, "A user")
	if e := subj.Event; e != nil {
		day, clock := formatWhen(e.Date, loc)
		switch kind {
		case KindTodoCreated, KindDueToday, KindDueTomorrow:
			p["todo_title"] = or(e.Title, "Untitled Todo")
			p["todo_date"] = day
			p["todo_description"] = or(e.Description, "No description provided")
		default:
			p["event_title"] = or(e.Title, "Untitled Event")
			p["event_date"] = day
			p["event_time"] = clock
			p["event_description"] = or(e.Description, "No description provided")
			p["event_location"] = or(e.Location, "Not specified")
		}
	}
	if g := subj.Group; g != nil {
		p["group_name"] = or(g.Name, "Untitled Group")
		p["group_description"] = or(g.Description, "No description provided")
	}
	switch kind {
	case KindEventCreated, KindTodoCreated:
		p["creator_name"] = name
	case KindEventUpdated:
		p["updater_name"] = name
	case KindGroupInvitation:
		p["inviter_name"] = name
	case KindEventReminder:
		p["reminder_message"] = ReminderText
	case KindOTP:
		p["user_name"] = or(actor, "User")
	}
	for k, v := range subj.Extra {
		p[k] = v
	}
	return p
}

// formatWhen: дата для письма и время либо "All day" для значений без 'T'.
func formatWhen(date string, loc *time.Location) (day, clock string) {
	if loc == nil {
		loc = time.UTC
	}
	if strings.TrimSpace(date) == "" {
		return "TBD", "All day"
	}
	t, allDay, err := model.ParseDate(date, loc)
	if err != nil {
		return date, "All day"
	}
	t = t.In(loc)
	if allDay || !strings.Contains(date, "T") {
		return t.Format(dateFormat), "All day"
	}
	return t.Format(dateFormat), t.Format(timeFormat)
}

// SubjectLine — тема письма для SMTP-транспорта.
func SubjectLine(kind Kind, subj Subject) string {
	title := ""
	if subj.Event != nil {
		title = subj.Event.Title
	}
	switch kind {
	case KindEventCreated:
		return "New event: " + or(title, "Untitled Event")
	case KindEventUpdated:
		return "Event updated: " + or(title, "Untitled Event")
	case KindTodoCreated:
		return "New todo: " + or(title, "Untitled Todo")
	case KindEventReminder:
		return "Starting soon: " + or(title, "Untitled Event")
	case KindDueToday:
		return "Reminder: " + or(title, "Untitled Todo") + " is due today"
	case KindDueTomorrow:
		return "Upcoming: " + or(title, "Untitled Todo") + " is due tomorrow"
	case KindGroupInvitation:
		if subj.Group != nil {
			return "You were added to " + or(subj.Group.Name, "a group")
		}
		return "Group invitation"
	case KindOTP:
		return "Your verification code"
	}
	return "Notification"
}
