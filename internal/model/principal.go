package model

import "strings"

type PrincipalKind int

const (
	PrincipalUserID PrincipalKind = iota + 1
	PrincipalEmail
)

// Principal — тот, от чьего имени читаются данные: user id либо email.
type Principal struct {
	Kind  PrincipalKind
	Value string
}

func UserID(id string) Principal { return Principal{Kind: PrincipalUserID, Value: strings.TrimSpace(id)} }

func Email(addr string) Principal { return Principal{Kind: PrincipalEmail, Value: strings.TrimSpace(addr)} }

func (p Principal) IsZero() bool { return p.Kind == 0 || p.Value == "" }

// Equivalent сравнивает принципалы одного вида: id — точно, email — без учёта регистра.
func Equivalent(a, b Principal) bool {
	if a.IsZero() || b.IsZero() || a.Kind != b.Kind {
		return false
	}
	if a.Kind == PrincipalEmail {
		return strings.EqualFold(a.Value, b.Value)
	}
	return a.Value == b.Value
}

// Matches проверяет токен из документа (createdBy, members, assignedTo).
// Любой токен сравнивается с id точно; с email дополнительно без учёта регистра.
func (p Principal) Matches(token string) bool {
	if p.IsZero() {
		return false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	if token == p.Value {
		return true
	}
	return p.Kind == PrincipalEmail && strings.EqualFold(token, p.Value)
}

// Identity — все принципалы, под которыми известен пользователь. Пустая Identity видит всё.
type Identity []Principal

func NewIdentity(userID, email string) Identity {
	var id Identity
	if p := UserID(userID); !p.IsZero() {
		id = append(id, p)
	}
	if p := Email(email); !p.IsZero() {
		id = append(id, p)
	}
	return id
}

func (id Identity) Anonymous() bool { return len(id) == 0 }

func (id Identity) Matches(token string) bool {
	for _, p := range id {
		if p.Matches(token) {
			return true
		}
	}
	return false
}

func (id Identity) find(kind PrincipalKind) string {
	for _, p := range id {
		if p.Kind == kind {
			return p.Value
		}
	}
	return ""
}

func (id Identity) UserID() string { return id.find(PrincipalUserID) }

func (id Identity) Email() string { return id.find(PrincipalEmail) }

// Author — значение createdBy: user id, иначе email.
func (id Identity) Author() string {
	if v := id.UserID(); v != "" {
		return v
	}
	return id.Email()
}

// Contact — значение для списка участников: email, иначе user id.
func (id Identity) Contact() string {
	if v := id.Email(); v != "" {
		return v
	}
	return id.UserID()
}

// String для логов.
func (id Identity) String() string {
	if id.Anonymous() {
		return "anonymous"
	}
	parts := make([]string, 0, len(id))
	for _, p := range id {
		parts = append(parts, p.Value)
	}
	return strings.Join(parts, "|")
}

// MergeContacts объединяет списки адресов с удалением дубликатов без учёта регистра.
// Сохраняется первое написание и порядок первого появления; пустые значения отбрасываются.
func MergeContacts(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, list := range lists {
		for _, v := range list {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			key := strings.ToLower(v)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
