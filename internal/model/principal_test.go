package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestPrincipalMatches(t *testing.T) {
	id := NewIdentity("u1", "Alice@Example.com")

	assert.Equal(t, id.Matches("u1"), true)
	assert.Equal(t, id.Matches("U1"), false)
	assert.Equal(t, id.Matches("alice@example.com"), true)
	assert.Equal(t, id.Matches(" ALICE@EXAMPLE.COM "), true)
	assert.Equal(t, id.Matches("bob@example.com"), false)
	assert.Equal(t, id.Matches(""), false)

	assert.Equal(t, Equivalent(Email("a@x.io"), Email("A@X.IO")), true)
	assert.Equal(t, Equivalent(UserID("a"), UserID("A")), false)
	assert.Equal(t, Equivalent(UserID("a@x.io"), Email("a@x.io")), false)
}

func TestIdentityAccessors(t *testing.T) {
	full := NewIdentity("u1", "a@x.io")
	assert.Equal(t, full.Author(), "u1")
	assert.Equal(t, full.Contact(), "a@x.io")
	assert.Equal(t, full.String(), "u1|a@x.io")

	emailOnly := NewIdentity("", "a@x.io")
	assert.Equal(t, emailOnly.Author(), "a@x.io")
	assert.Equal(t, emailOnly.UserID(), "")

	anon := NewIdentity(" ", "")
	assert.Equal(t, anon.Anonymous(), true)
	assert.Equal(t, anon.String(), "anonymous")
}

func TestMergeContacts(t *testing.T) {
	merged := MergeContacts(
		[]string{"a@x.io", "B@x.io", ""},
		[]string{"b@x.io", "c@x.io", " a@X.io "},
	)
	assert.Equal(t, merged, []string{"a@x.io", "B@x.io", "c@x.io"})
	assert.Equal(t, MergeContacts(), []string{})
}

func TestParseDate(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)

	d, allDay, err := ParseDate("2024-03-10", loc)
	assert.Equal(t, err, nil)
	assert.Equal(t, allDay, true)
	assert.Equal(t, d.Equal(time.Date(2024, 3, 10, 0, 0, 0, 0, loc)), true)

	d, allDay, err = ParseDate("2024-03-10T09:30", loc)
	assert.Equal(t, err, nil)
	assert.Equal(t, allDay, false)
	assert.Equal(t, d.Equal(time.Date(2024, 3, 10, 9, 30, 0, 0, loc)), true)

	d, _, err = ParseDate("2024-03-10T22:00:00Z", loc)
	assert.Equal(t, err, nil)
	assert.Equal(t, d.Equal(time.Date(2024, 3, 10, 22, 0, 0, 0, time.UTC)), true)

	_, _, err = ParseDate("next tuesday", nil)
	assert.Equal(t, err, ErrBadDate)

	// 22:00Z это уже 11 марта в UTC+3.
	e := Event{Date: "2024-03-10T22:00:00Z"}
	assert.Equal(t, e.Day(loc), "2024-03-11")
	assert.Equal(t, e.Day(nil), "2024-03-10")
	assert.Equal(t, Event{Date: "bad"}.Day(loc), "")
}

func TestEventClone(t *testing.T) {
	e := Event{ID: "1", AssignedTo: []string{"a@x.io"}, GroupIDs: []string{"g1"}}
	c := e.Clone()
	c.AssignedTo[0] = "b@x.io"
	c.GroupIDs = append(c.GroupIDs, "g2")
	assert.Equal(t, e.AssignedTo[0], "a@x.io")
	assert.Equal(t, len(e.GroupIDs), 1)

	empty := Event{ID: "2", AssignedTo: []string{}}.Clone()
	assert.NotEqual(t, empty.AssignedTo, nil)
	assert.NotEqual(t, empty.GroupIDs, nil)
	raw, err := json.Marshal(empty)
	assert.Equal(t, err, nil)
	assert.Equal(t, strings.Contains(string(raw), `"assigned_to":[]`), true)
	assert.Equal(t, strings.Contains(string(raw), `"group_ids":[]`), true)
	assert.NotEqual(t, Group{ID: "g"}.Clone().Members, nil)
}

func TestOTPRecordState(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := OTPRecord{ExpiryTime: now.Add(time.Minute), Attempts: 4, MaxAttempts: 5}
	assert.Equal(t, rec.Expired(now), false)
	assert.Equal(t, rec.Expired(now.Add(time.Minute)), true)
	assert.Equal(t, rec.Exhausted(), false)
	rec.Attempts++
	assert.Equal(t, rec.Exhausted(), true)
}
