// Package ics — выгрузка видимых пользователю записей в iCalendar.
package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/planner/internal/model"
)

const ProductID = "-//planner//calendar export//EN"

// DefaultDuration — длительность события со временем начала (конец в модели не хранится).
const DefaultDuration = time.Hour

// Export собирает VCALENDAR. Записи с нераспознаваемой датой пропускаются.
func Export(events []model.Event, name string, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)
	if name != "" {
		cal.SetXWRCalName(name)
	}
	for _, e := range events {
		start, allDay, err := model.ParseDate(e.Date, loc)
		if err != nil {
			continue
		}
		ev := cal.AddEvent(e.ID + "@planner")
		ev.SetSummary(e.Title)
		if e.Description != "" {
			ev.SetDescription(e.Description)
		}
		if e.Location != "" {
			ev.SetLocation(e.Location)
		}
		if allDay {
			ev.SetAllDayStartAt(start)
			ev.SetAllDayEndAt(start.AddDate(0, 0, 1))
		} else {
			ev.SetStartAt(start)
			ev.SetEndAt(start.Add(DefaultDuration))
		}
		stamp := e.UpdatedAt
		if stamp.IsZero() {
			stamp = e.CreatedAt
		}
		if !stamp.IsZero() {
			ev.SetDtStampTime(stamp)
			ev.SetModifiedAt(stamp)
		}
		if !e.CreatedAt.IsZero() {
			ev.SetCreatedTime(e.CreatedAt)
		}
		kind := e.Kind
		if kind == "" {
			kind = model.KindEvent
		}
		ev.SetProperty(ical.ComponentPropertyCategories, strings.ToUpper(string(kind)))
		if e.IsTodo() && e.Completed {
			ev.SetProperty(ical.ComponentProperty("X-PLANNER-COMPLETED"), "TRUE")
		}
	}
	return cal.Serialize()
}
