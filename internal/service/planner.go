package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/planner/internal/apperr"
	"github.com/planner/internal/logger"
	"github.com/planner/internal/model"
	"github.com/planner/internal/notify"
	"github.com/planner/internal/sanitize"
	"github.com/planner/internal/storage"
	"github.com/planner/internal/visibility"
)

// EventInput — данные новой записи календаря. GroupIDs раскрываются в участников при создании.
type EventInput struct {
	Title       string          `json:"title"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Location    string          `json:"location"`
	Kind        model.EventKind `json:"type"`
	AssignedTo  []string        `json:"assigned_to"`
	GroupIDs    []string        `json:"group_ids"`
}

// EventPatch — частичное обновление: nil-поля не трогаются.
// AssignedTo не пересчитывается из GroupIDs, даже если GroupIDs меняются.
type EventPatch struct {
	Title       *string          `json:"title,omitempty"`
	Date        *string          `json:"date,omitempty"`
	Description *string          `json:"description,omitempty"`
	Location    *string          `json:"location,omitempty"`
	Kind        *model.EventKind `json:"type,omitempty"`
	Completed   *bool            `json:"completed,omitempty"`
	AssignedTo  *[]string        `json:"assigned_to,omitempty"`
	GroupIDs    *[]string        `json:"group_ids,omitempty"`
}

type GroupInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Members     []string `json:"members"`
}

// Result — запись после мутации и итог рассылки по ней (если рассылка была).
type Result[T any] struct {
	Entity T               `json:"entity"`
	Notice *notify.Outcome `json:"notice,omitempty"`
}

// Warning — предупреждение о недоставленных письмах или "".
func (r Result[T]) Warning() string {
	if r.Notice == nil {
		return ""
	}
	return r.Notice.Warning()
}

// Planner — мутации событий, групп и чата. Запись — источник истины, письма — побочный канал.
type Planner struct {
	store    storage.Store
	notifier *notify.Notifier
	now      func() time.Time
	loc      *time.Location
}

type PlannerOption func(*Planner)

// WithClock подменяет часы (для тестов).
func WithClock(now func() time.Time) PlannerOption {
	return func(p *Planner) { p.now = now }
}

// WithLocation — часовой пояс для дат без зоны.
func WithLocation(loc *time.Location) PlannerOption {
	return func(p *Planner) {
		if loc != nil {
			p.loc = loc
		}
	}
}

func NewPlanner(store storage.Store, notifier *notify.Notifier, opts ...PlannerOption) *Planner {
	p := &Planner{store: store, notifier: notifier, now: time.Now, loc: time.UTC}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Planner) notify(ctx context.Context, kind notify.Kind, subj notify.Subject, to []string, actor string) *notify.Outcome {
	if p.notifier == nil {
		return nil
	}
	// Рассылка не отменяется вместе с запросом: запись уже сделана.
	out := p.notifier.Notify(context.WithoutCancel(ctx), kind, subj, to, actor)
	return &out
}

// CreateEvent проверяет ввод, раскрывает группы свежим чтением хранилища, ставит отметки и пишет запись.
func (p *Planner) CreateEvent(ctx context.Context, in EventInput, creator model.Identity) (Result[model.Event], error) {
	defer logger.DeferLogDuration("planner.CreateEvent", time.Now())()
	var res Result[model.Event]

	title := sanitize.Title(in.Title)
	if title == "" {
		return res, apperr.Validation("title", "required")
	}
	date := strings.TrimSpace(in.Date)
	if date == "" {
		return res, apperr.Validation("date", "required")
	}
	if _, _, err := model.ParseDate(date, p.loc); err != nil {
		return res, apperr.Validation("date", err.Error())
	}
	kind := in.Kind
	switch kind {
	case "":
		kind = model.KindEvent
	case model.KindEvent, model.KindTodo:
	default:
		return res, apperr.Validation("type", "must be event or todo")
	}
	explicit, bad := sanitize.Emails(in.AssignedTo)
	if bad != "" {
		return res, apperr.Validation("assigned_to", "invalid email "+bad)
	}

	groupIDs := uniqueIDs(in.GroupIDs)
	members, err := p.membersOf(ctx, groupIDs)
	if err != nil {
		return res, err
	}

	now := p.now().UTC()
	e := model.Event{
		ID:          uuid.New().String(),
		Title:       title,
		Date:        date,
		Description: sanitize.Description(in.Description),
		Location:    sanitize.Text(in.Location, sanitize.MaxTitle),
		Kind:        kind,
		AssignedTo:  model.MergeContacts(explicit, members),
		GroupIDs:    groupIDs,
		CreatedBy:   creator.Author(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.store.CreateEvent(ctx, &e); err != nil {
		return res, err
	}
	res.Entity = e

	notice := notify.KindEventCreated
	if e.IsTodo() {
		notice = notify.KindTodoCreated
	}
	res.Notice = p.notify(ctx, notice, notify.Subject{Event: &e}, e.AssignedTo, displayName(creator))
	return res, nil
}

// membersOf читает группы из хранилища (не из кэша подписки) и собирает участников.
// Неизвестные id групп пропускаются.
func (p *Planner) membersOf(ctx context.Context, groupIDs []string) ([]string, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	groups, err := p.store.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]struct{}, len(groupIDs))
	for _, id := range groupIDs {
		wanted[id] = struct{}{}
	}
	var members []string
	for _, g := range groups {
		if _, ok := wanted[g.ID]; ok {
			members = append(members, g.Members...)
		}
	}
	return members, nil
}

// UpdateEvent применяет patch поверх текущей записи и ставит UpdatedAt. Last write wins.
func (p *Planner) UpdateEvent(ctx context.Context, id string, patch EventPatch, editor model.Identity) (Result[model.Event], error) {
	defer logger.DeferLogDuration("planner.UpdateEvent", time.Now())()
	var res Result[model.Event]

	cur, err := p.store.GetEvent(ctx, id)
	if err != nil {
		return res, err
	}
	e := cur.Clone()
	if patch.Title != nil {
		t := sanitize.Title(*patch.Title)
		if t == "" {
			return res, apperr.Validation("title", "required")
		}
		e.Title = t
	}
	if patch.Date != nil {
		d := strings.TrimSpace(*patch.Date)
		if _, _, err := model.ParseDate(d, p.loc); err != nil {
			return res, apperr.Validation("date", err.Error())
		}
		e.Date = d
	}
	if patch.Description != nil {
		e.Description = sanitize.Description(*patch.Description)
	}
	if patch.Location != nil {
		e.Location = sanitize.Text(*patch.Location, sanitize.MaxTitle)
	}
	if patch.Kind != nil {
		if *patch.Kind != model.KindEvent && *patch.Kind != model.KindTodo {
			return res, apperr.Validation("type", "must be event or todo")
		}
		e.Kind = *patch.Kind
	}
	if patch.Completed != nil {
		e.Completed = *patch.Completed
	}
	if patch.AssignedTo != nil {
		clean, bad := sanitize.Emails(*patch.AssignedTo)
		if bad != "" {
			return res, apperr.Validation("assigned_to", "invalid email "+bad)
		}
		e.AssignedTo = model.MergeContacts(clean)
	}
	if patch.GroupIDs != nil {
		e.GroupIDs = uniqueIDs(*patch.GroupIDs)
	}
	e.UpdatedAt = p.now().UTC()

	if err := p.store.UpdateEvent(ctx, &e); err != nil {
		return res, err
	}
	res.Entity = e
	if !e.IsTodo() {
		res.Notice = p.notify(ctx, notify.KindEventUpdated, notify.Subject{Event: &e}, e.AssignedTo, displayName(editor))
	}
	return res, nil
}

// ToggleTodo переключает Completed.
func (p *Planner) ToggleTodo(ctx context.Context, id string, editor model.Identity) (Result[model.Event], error) {
	cur, err := p.store.GetEvent(ctx, id)
	if err != nil {
		return Result[model.Event]{}, err
	}
	done := !cur.Completed
	return p.UpdateEvent(ctx, id, EventPatch{Completed: &done}, editor)
}

// DeleteEvent идемпотентен: удаление отсутствующей записи — успех.
func (p *Planner) DeleteEvent(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("planner.DeleteEvent", time.Now())()
	if strings.TrimSpace(id) == "" {
		return apperr.Validation("id", "required")
	}
	return p.store.DeleteEvent(ctx, id)
}

func (p *Planner) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return p.store.GetEvent(ctx, id)
}

func (p *Planner) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	return p.store.GetGroup(ctx, id)
}

// VisibleEvent отдаёт запись, только если id её видит; иначе NotFound, как для отсутствующей.
// Индекс групп строится по свежему чтению хранилища.
func (p *Planner) VisibleEvent(ctx context.Context, eventID string, id model.Identity) (*model.Event, error) {
	e, err := p.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if visibility.CanSeeEvent(id, *e, nil) {
		return e, nil
	}
	if len(e.GroupIDs) > 0 {
		groups, err := p.store.ListGroups(ctx)
		if err != nil {
			return nil, err
		}
		if visibility.CanSeeEvent(id, *e, visibility.BuildIndex(id, groups)) {
			return e, nil
		}
	}
	return nil, apperr.NotFound("event", eventID)
}

// Visible — разовое чтение: группы и записи, видимые id, по свежему индексу членства.
func (p *Planner) Visible(ctx context.Context, id model.Identity) ([]model.Event, []model.Group, error) {
	groups, err := p.store.ListGroups(ctx)
	if err != nil {
		return nil, nil, err
	}
	events, err := p.store.ListEvents(ctx)
	if err != nil {
		return nil, nil, err
	}
	idx := visibility.BuildIndex(id, groups)
	return visibility.FilterEvents(id, events, idx), visibility.FilterGroups(id, groups), nil
}

// CreateGroup добавляет создателя в участники (без дублей по регистру) и пишет группу.
func (p *Planner) CreateGroup(ctx context.Context, in GroupInput, creator model.Identity) (Result[model.Group], error) {
	defer logger.DeferLogDuration("planner.CreateGroup", time.Now())()
	var res Result[model.Group]

	name := sanitize.GroupName(in.Name)
	if name == "" {
		return res, apperr.Validation("name", "required")
	}
	members, bad := sanitize.Emails(in.Members)
	if bad != "" {
		return res, apperr.Validation("members", "invalid email "+bad)
	}
	var self []string
	if c := creator.Contact(); c != "" {
		self = []string{c}
	}
	g := model.Group{
		ID:          uuid.New().String(),
		Name:        name,
		Description: sanitize.Description(in.Description),
		Members:     model.MergeContacts(members, self),
		CreatedBy:   creator.Author(),
		CreatedAt:   p.now().UTC(),
	}
	if err := p.store.CreateGroup(ctx, &g); err != nil {
		return res, err
	}
	res.Entity = g
	// Приглашения — только явно указанным участникам, не создателю.
	res.Notice = p.notify(ctx, notify.KindGroupInvitation, notify.Subject{Group: &g}, members, displayName(creator))
	return res, nil
}

// SendChatMessage пишет сообщение в чат группы. ID — ULID, чтобы порядок вставки разрешал равные Timestamp.
func (p *Planner) SendChatMessage(ctx context.Context, groupID, sender, text string) (*model.ChatMessage, error) {
	defer logger.DeferLogDuration("planner.SendChatMessage", time.Now())()
	if strings.TrimSpace(groupID) == "" {
		return nil, apperr.Validation("group_id", "required")
	}
	msg := sanitize.Message(text)
	if msg == "" {
		return nil, apperr.Validation("message", "required")
	}
	if strings.TrimSpace(sender) == "" {
		return nil, apperr.Validation("sender", "required")
	}
	now := p.now().UTC()
	m := &model.ChatMessage{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		GroupID:   groupID,
		Sender:    strings.TrimSpace(sender),
		Message:   msg,
		Timestamp: now,
	}
	if err := p.store.AppendMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (p *Planner) ChatMessages(ctx context.Context, groupID string) ([]model.ChatMessage, error) {
	return p.store.ListMessages(ctx, groupID)
}

// SetEmailVerified — запись users/{id} после подтверждения OTP.
func (p *Planner) SetEmailVerified(ctx context.Context, userID string, verified bool) error {
	if strings.TrimSpace(userID) == "" {
		return apperr.Validation("user_id", "required")
	}
	st := model.UserStatus{UserID: userID, EmailVerified: verified, VerifiedViaOTP: verified}
	if verified {
		now := p.now().UTC()
		st.EmailVerifiedAt = &now
	}
	return p.store.SetVerification(ctx, st)
}

func (p *Planner) VerificationStatus(ctx context.Context, userID string) (*model.UserStatus, error) {
	return p.store.GetVerification(ctx, userID)
}

// displayName — имя автора в письмах: локальная часть email, иначе "A user".
func displayName(id model.Identity) string {
	if e := id.Email(); e != "" {
		if at := strings.IndexByte(e, '@'); at > 0 {
			return e[:at]
		}
		return e
	}
	return "A user"
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
