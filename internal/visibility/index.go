package visibility

import "github.com/planner/internal/model"

// Index — группа → состоит ли в ней пользователь. Строится заново на каждый снимок групп.
// Нулевой указатель означает «ещё не загружен».
type Index struct {
	member map[string]bool
}

// BuildIndex отмечает группы, которые id видит по CanSeeGroup: создатель считается участником,
// даже если его нет в members (createdBy — user id, а в members попадает email).
func BuildIndex(id model.Identity, groups []model.Group) *Index {
	idx := &Index{member: make(map[string]bool, len(groups))}
	for _, g := range groups {
		idx.member[g.ID] = CanSeeGroup(id, g)
	}
	return idx
}

func (x *Index) Loaded() bool { return x != nil }

func (x *Index) IsMember(groupID string) bool {
	if x == nil {
		return false
	}
	return x.member[groupID]
}

// Groups возвращает id групп, в которых состоит пользователь.
func (x *Index) Groups() []string {
	if x == nil {
		return nil
	}
	out := make([]string, 0, len(x.member))
	for gid, ok := range x.member {
		if ok {
			out = append(out, gid)
		}
	}
	return out
}
