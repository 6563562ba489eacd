// Package visibility решает, какие события и группы видит пользователь.
// Функции чистые: без ввода-вывода, безопасны для конкурентного вызова.
package visibility

import "github.com/planner/internal/model"

// CanSeeGroup: создатель или участник. Анонимная Identity видит всё.
func CanSeeGroup(id model.Identity, g model.Group) bool {
	if id.Anonymous() {
		return true
	}
	return id.Matches(g.CreatedBy) || isMember(id, g)
}

// CanSeeEvent: создатель, явно назначенный или участник одной из групп события по индексу.
// Пока индекс не загружен (nil), видимость через группы не засчитывается.
func CanSeeEvent(id model.Identity, e model.Event, idx *Index) bool {
	if id.Anonymous() {
		return true
	}
	if id.Matches(e.CreatedBy) {
		return true
	}
	for _, a := range e.AssignedTo {
		if id.Matches(a) {
			return true
		}
	}
	for _, gid := range e.GroupIDs {
		if idx.IsMember(gid) {
			return true
		}
	}
	return false
}

// FilterGroups возвращает видимые группы в исходном порядке.
func FilterGroups(id model.Identity, groups []model.Group) []model.Group {
	out := make([]model.Group, 0, len(groups))
	for _, g := range groups {
		if CanSeeGroup(id, g) {
			out = append(out, g)
		}
	}
	return out
}

// FilterEvents возвращает видимые события в исходном порядке.
func FilterEvents(id model.Identity, events []model.Event, idx *Index) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if CanSeeEvent(id, e, idx) {
			out = append(out, e)
		}
	}
	return out
}

func isMember(id model.Identity, g model.Group) bool {
	for _, m := range g.Members {
		if id.Matches(m) {
			return true
		}
	}
	return false
}
