package visibility

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/planner/internal/model"
)

func TestCanSeeGroup(t *testing.T) {
	g := model.Group{ID: "g1", CreatedBy: "owner", Members: []string{"Alice@x.io", "u2"}}

	assert.Equal(t, CanSeeGroup(model.NewIdentity("owner", ""), g), true)
	assert.Equal(t, CanSeeGroup(model.NewIdentity("", "alice@X.IO"), g), true)
	assert.Equal(t, CanSeeGroup(model.NewIdentity("u2", "other@x.io"), g), true)
	assert.Equal(t, CanSeeGroup(model.NewIdentity("u3", "bob@x.io"), g), false)
	assert.Equal(t, CanSeeGroup(model.Identity{}, g), true)
}

func TestCanSeeEventPaths(t *testing.T) {
	groups := []model.Group{
		{ID: "g1", CreatedBy: "owner", Members: []string{"bob@x.io"}},
		{ID: "g2", CreatedBy: "carol", Members: []string{}},
	}
	bob := model.NewIdentity("ub", "bob@x.io")
	carol := model.NewIdentity("carol", "carol@x.io")

	byGroup := model.Event{ID: "e1", CreatedBy: "owner", GroupIDs: []string{"g1"}}
	assert.Equal(t, CanSeeEvent(bob, byGroup, BuildIndex(bob, groups)), true)
	// До первого снимка групп видимость через группы не работает.
	assert.Equal(t, CanSeeEvent(bob, byGroup, nil), false)

	// Создатель группы видит её события, даже если его нет в members.
	byG2 := model.Event{ID: "e2", CreatedBy: "dave", GroupIDs: []string{"g2"}}
	assert.Equal(t, CanSeeEvent(carol, byG2, BuildIndex(carol, groups)), true)
	assert.Equal(t, CanSeeEvent(bob, byG2, BuildIndex(bob, groups)), false)

	assigned := model.Event{ID: "e3", CreatedBy: "dave", AssignedTo: []string{"BOB@x.io"}}
	assert.Equal(t, CanSeeEvent(bob, assigned, nil), true)

	own := model.Event{ID: "e4", CreatedBy: "ub"}
	assert.Equal(t, CanSeeEvent(bob, own, nil), true)
	assert.Equal(t, CanSeeEvent(carol, own, nil), false)
	assert.Equal(t, CanSeeEvent(model.Identity{}, own, nil), true)
}

func TestBuildIndex(t *testing.T) {
	groups := []model.Group{
		{ID: "g1", Members: []string{"a@x.io"}},
		{ID: "g2", Members: []string{"b@x.io"}},
		{ID: "g3", Members: []string{"A@X.IO", "b@x.io"}},
	}
	idx := BuildIndex(model.NewIdentity("", "a@x.io"), groups)
	assert.Equal(t, idx.Loaded(), true)
	assert.Equal(t, idx.IsMember("g1"), true)
	assert.Equal(t, idx.IsMember("g2"), false)
	assert.Equal(t, idx.IsMember("missing"), false)
	got := idx.Groups()
	sort.Strings(got)
	assert.Equal(t, got, []string{"g1", "g3"})

	creator := BuildIndex(model.NewIdentity("u1", ""), []model.Group{{ID: "g", CreatedBy: "u1", Members: []string{"x@y.io"}}})
	assert.Equal(t, creator.IsMember("g"), true)
	assert.Equal(t, CanSeeEvent(model.NewIdentity("u1", ""), model.Event{ID: "e", CreatedBy: "u9", GroupIDs: []string{"g"}}, creator), true)

	anon := BuildIndex(model.Identity{}, groups)
	assert.Equal(t, len(anon.Groups()), 3)

	var none *Index
	assert.Equal(t, none.Loaded(), false)
	assert.Equal(t, none.IsMember("g1"), false)
}

// Событие видно тогда и только тогда, когда выполнено хотя бы одно из условий.
func TestCanSeeEventEquivalence(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	people := []string{"a@x.io", "b@x.io", "u1", "u2"}
	pick := func() []string {
		var out []string
		for _, p := range people {
			if r.Intn(3) == 0 {
				out = append(out, p)
			}
		}
		return out
	}
	groups := make([]model.Group, 4)
	for i := range groups {
		groups[i] = model.Group{ID: fmt.Sprintf("g%d", i), CreatedBy: people[r.Intn(len(people))], Members: pick()}
	}
	ids := []model.Identity{
		model.NewIdentity("u1", "a@x.io"),
		model.NewIdentity("u2", ""),
		model.NewIdentity("", "B@X.IO"),
	}
	for n := 0; n < 500; n++ {
		e := model.Event{
			ID:         fmt.Sprintf("e%d", n),
			CreatedBy:  people[r.Intn(len(people))],
			AssignedTo: pick(),
		}
		for _, g := range groups {
			if r.Intn(3) == 0 {
				e.GroupIDs = append(e.GroupIDs, g.ID)
			}
		}
		for _, id := range ids {
			idx := BuildIndex(id, groups)
			want := id.Matches(e.CreatedBy)
			for _, a := range e.AssignedTo {
				want = want || id.Matches(a)
			}
			for _, g := range groups {
				for _, gid := range e.GroupIDs {
					want = want || (gid == g.ID && CanSeeGroup(id, g))
				}
			}
			assert.Equal(t, CanSeeEvent(id, e, idx), want)
		}
	}
}

func TestFilterKeepsOrder(t *testing.T) {
	id := model.NewIdentity("u1", "")
	events := []model.Event{
		{ID: "3", CreatedBy: "u1"},
		{ID: "1", CreatedBy: "u9"},
		{ID: "2", AssignedTo: []string{"u1"}},
	}
	got := FilterEvents(id, events, nil)
	assert.Equal(t, len(got), 2)
	assert.Equal(t, got[0].ID, "3")
	assert.Equal(t, got[1].ID, "2")

	assert.Equal(t, len(FilterGroups(id, nil)), 0)
}
