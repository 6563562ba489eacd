package model

import (
	"errors"
	"strings"
	"time"
)

type EventKind string

const (
	KindEvent EventKind = "event"
	KindTodo  EventKind = "todo"
)

// Event — событие календаря или задача (todo).
// AssignedTo вычисляется при создании и дальше не пересчитывается из GroupIDs.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Date        string    `json:"date"`
	Description string    `json:"description"`
	Location    string    `json:"location,omitempty"`
	Kind        EventKind `json:"type"`
	Completed   bool      `json:"completed"`
	AssignedTo  []string  `json:"assigned_to"`
	GroupIDs    []string  `json:"group_ids"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone копирует событие вместе со слайсами. Слайсы в копии никогда не nil:
// в JSON пустой список остаётся [], а не null.
func (e Event) Clone() Event {
	e.AssignedTo = cloneStrings(e.AssignedTo)
	e.GroupIDs = cloneStrings(e.GroupIDs)
	return e
}

func cloneStrings(s []string) []string {
	return append(make([]string, 0, len(s)), s...)
}

func (e Event) IsTodo() bool { return e.Kind == KindTodo }

var ErrBadDate = errors.New("unrecognized date format")

const DateLayout = "2006-01-02"

var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseDate разбирает Event.Date. Значения без зоны трактуются в loc.
// allDay — дата без времени.
func ParseDate(s string, loc *time.Location) (t time.Time, allDay bool, err error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(DateLayout, s, loc); err == nil {
		return t, true, nil
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, false, nil
		}
	}
	return time.Time{}, false, ErrBadDate
}

// Day возвращает календарный день события (YYYY-MM-DD) или "".
func (e Event) Day(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	t, _, err := ParseDate(e.Date, loc)
	if err != nil {
		return ""
	}
	return t.In(loc).Format(DateLayout)
}
