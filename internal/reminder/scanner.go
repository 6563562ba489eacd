// Package reminder — напоминания о скором начале событий и ежедневные сводки по срокам.
// Повторная отправка исключается отметкой в журнале, которая ставится до рассылки.
package reminder

import (
	"context"
	"time"

	"github.com/planner/internal/logger"
	"github.com/planner/internal/model"
	"github.com/planner/internal/notify"
	"github.com/planner/internal/storage"
)

const (
	DefaultLead   = 5 * time.Minute
	DefaultWindow = time.Minute
)

// Report — итог одного прохода.
type Report struct {
	Job        string           `json:"job"`
	Checked    int              `json:"checked"`
	Due        int              `json:"due"`
	Claimed    int              `json:"claimed"`
	Duplicates int              `json:"duplicates"`
	Outcomes   []notify.Outcome `json:"outcomes,omitempty"`
}

type Scanner struct {
	events   storage.EventStore
	ledger   storage.ReminderLedger
	notifier *notify.Notifier
	lead     time.Duration
	window   time.Duration
	loc      *time.Location
	now      func() time.Time
}

type Option func(*Scanner)

func WithLead(lead, window time.Duration) Option {
	return func(s *Scanner) {
		if lead > 0 {
			s.lead = lead
		}
		if window > 0 && window <= s.lead {
			s.window = window
		}
	}
}

func WithLocation(loc *time.Location) Option {
	return func(s *Scanner) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

func NewScanner(events storage.EventStore, ledger storage.ReminderLedger, notifier *notify.Notifier, opts ...Option) *Scanner {
	s := &Scanner{
		events:   events,
		ledger:   ledger,
		notifier: notifier,
		lead:     DefaultLead,
		window:   DefaultWindow,
		loc:      time.UTC,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Scan находит события (не задачи), начинающиеся через (lead-window, lead], и шлёт напоминание
// каждому назначенному. Ключ отметки — id события: одно напоминание на событие.
func (s *Scanner) Scan(ctx context.Context) (Report, error) {
	defer logger.DeferLogDuration("reminder.Scan", time.Now())()
	now := s.now()
	return s.run(ctx, "upcoming", func(e model.Event) (string, bool) {
		if e.Kind != model.KindEvent && e.Kind != "" {
			return "", false
		}
		start, allDay, err := model.ParseDate(e.Date, s.loc)
		if err != nil {
			return "", false
		}
		if allDay {
			return "", false
		}
		until := start.Sub(now)
		if until > s.lead || until <= s.lead-s.window {
			return "", false
		}
		return e.ID, true
	}, notify.KindEventReminder)
}

// ScanDueToday — сводка по записям с датой «сегодня» (09:00). Выполненные задачи пропускаются.
func (s *Scanner) ScanDueToday(ctx context.Context) (Report, error) {
	day := s.now().In(s.loc).Format(model.DateLayout)
	return s.scanDay(ctx, "due-today", day, notify.KindDueToday)
}

// ScanDueTomorrow — сводка по записям с датой «завтра» (18:00).
func (s *Scanner) ScanDueTomorrow(ctx context.Context) (Report, error) {
	day := s.now().In(s.loc).AddDate(0, 0, 1).Format(model.DateLayout)
	return s.scanDay(ctx, "due-tomorrow", day, notify.KindDueTomorrow)
}

func (s *Scanner) scanDay(ctx context.Context, job, day string, kind notify.Kind) (Report, error) {
	defer logger.DeferLogDuration("reminder."+job, time.Now())()
	return s.run(ctx, job, func(e model.Event) (string, bool) {
		if e.Completed || e.Day(s.loc) != day {
			return "", false
		}
		return job + ":" + e.ID + ":" + day, true
	}, kind)
}

// run: список событий → отбор → отметка в журнале → рассылка только по отмеченным впервые.
func (s *Scanner) run(ctx context.Context, job string, pick func(model.Event) (string, bool), kind notify.Kind) (Report, error) {
	rep := Report{Job: job}
	events, err := s.events.ListEvents(ctx)
	if err != nil {
		return rep, err
	}
	now := s.now()
	for _, e := range events {
		rep.Checked++
		key, ok := pick(e)
		if !ok || len(e.AssignedTo) == 0 {
			continue
		}
		rep.Due++
		first, err := s.ledger.Claim(ctx, key, e.ID, now)
		if err != nil {
			logger.Errorf("reminder %s: claim %s: %v", job, key, err)
			continue
		}
		if !first {
			rep.Duplicates++
			continue
		}
		rep.Claimed++
		ev := e
		out := s.notifier.Notify(ctx, kind, notify.Subject{Event: &ev}, e.AssignedTo, "")
		rep.Outcomes = append(rep.Outcomes, out)
	}
	if rep.Claimed > 0 || rep.Duplicates > 0 {
		logger.Infof("reminder %s: checked=%d due=%d sent_for=%d duplicates=%d", job, rep.Checked, rep.Due, rep.Claimed, rep.Duplicates)
	}
	return rep, nil
}
