// Package notify — рассылка писем о событиях, задачах, группах и напоминаниях.
// Доставка best-effort: ошибки одного адресата не влияют на остальных и не
// выходят наружу, результат описывается Outcome.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/planner/internal/apperr"
	"github.com/planner/internal/logger"
	"github.com/planner/internal/model"
	"github.com/planner/internal/sanitize"
)

// Transport доставляет одно письмо. Реализации: emailjs.Client, email.Sender.
type Transport interface {
	Configured() bool
	Send(ctx context.Context, msg Message) error
}

type Failure struct {
	Recipient string `json:"recipient"`
	Error     string `json:"error"`
	err       error
}

func (f Failure) Err() error { return f.err }

// Outcome — итог рассылки. Skipped — транспорт не настроен, никто не получил письмо.
type Outcome struct {
	Kind      Kind      `json:"kind"`
	Attempted int       `json:"attempted"`
	Sent      int       `json:"sent"`
	Failed    int       `json:"failed"`
	Skipped   bool      `json:"skipped,omitempty"`
	Failures  []Failure `json:"failures,omitempty"`
	Reason    error     `json:"-"`
}

// Warning — текст предупреждения для пользователя или "" если всё доставлено.
func (o Outcome) Warning() string {
	switch {
	case o.Skipped:
		return "email notifications are not configured; nobody was notified"
	case o.Failed > 0 && o.Sent == 0:
		return fmt.Sprintf("saved, but email notification failed for all %d recipient(s)", o.Failed)
	case o.Failed > 0:
		return fmt.Sprintf("saved, but email notification failed for %d of %d recipient(s)", o.Failed, o.Attempted)
	}
	return ""
}

const (
	defaultConcurrency = 8
	defaultSendTimeout = 15 * time.Second
)

type Notifier struct {
	transport   Transport
	concurrency int
	timeout     time.Duration
	loc         *time.Location
}

type Option func(*Notifier)

func WithConcurrency(n int) Option {
	return func(nt *Notifier) {
		if n > 0 {
			nt.concurrency = n
		}
	}
}

// WithSendTimeout ограничивает ожидание одного письма; истечение — retryable TransportError.
func WithSendTimeout(d time.Duration) Option {
	return func(nt *Notifier) {
		if d > 0 {
			nt.timeout = d
		}
	}
}

// WithLocation — часовой пояс для дат в письмах.
func WithLocation(loc *time.Location) Option {
	return func(nt *Notifier) {
		if loc != nil {
			nt.loc = loc
		}
	}
}

func New(t Transport, opts ...Option) *Notifier {
	n := &Notifier{transport: t, concurrency: defaultConcurrency, timeout: defaultSendTimeout, loc: time.UTC}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Configured — есть ли куда слать.
func (n *Notifier) Configured() bool {
	return n != nil && n.transport != nil && n.transport.Configured()
}

// Notify шлёт по письму каждому адресату параллельно (не более concurrency одновременно).
// Дубликаты адресов (без учёта регистра) отбрасываются, невалидные адреса считаются неудачей.
func (n *Notifier) Notify(ctx context.Context, kind Kind, subj Subject, recipients []string, actorName string) Outcome {
	out := Outcome{Kind: kind}
	recipients = model.MergeContacts(recipients)
	if len(recipients) == 0 {
		return out
	}
	if !n.Configured() {
		out.Skipped = true
		out.Reason = apperr.ErrNotConfigured
		logger.Warnf("notify %s: transport not configured, skipping %d recipient(s)", kind, len(recipients))
		return out
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(n.concurrency)
	record := func(to string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			out.Sent++
			return
		}
		out.Failed++
		out.Failures = append(out.Failures, Failure{Recipient: to, Error: err.Error(), err: err})
	}

	for _, to := range recipients {
		out.Attempted++
		if !sanitize.ValidEmail(to) {
			record(to, apperr.Validation("recipient", "not an email address"))
			continue
		}
		msg := Message{
			Kind:    kind,
			To:      to,
			Subject: SubjectLine(kind, subj),
			Params:  BuildParams(kind, subj, to, actorName, n.loc),
		}
		g.Go(func() error {
			record(msg.To, n.sendOne(ctx, msg))
			return nil
		})
	}
	_ = g.Wait()

	if out.Failed > 0 {
		logger.Warnf("notify %s: sent=%d failed=%d", kind, out.Sent, out.Failed)
	} else {
		logger.Infof("notify %s: sent=%d", kind, out.Sent)
	}
	return out
}

// sendOne изолирует адресата: таймаут и паника транспорта превращаются в ошибку.
func (n *Notifier) sendOne(ctx context.Context, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Transport("notify.send", fmt.Errorf("panic: %v", r))
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.transport.Send(ctx, msg); err != nil {
		logger.Errorf("notify %s to=%s: %v", msg.Kind, maskEmail(msg.To), err)
		return apperr.Transport("notify.send", err)
	}
	return nil
}

// maskEmail скрывает локальную часть адреса в логах.
func maskEmail(s string) string {
	at := strings.IndexByte(s, '@')
	if at <= 1 {
		return "***" + s[max(at, 0):]
	}
	return s[:1] + "***" + s[at:]
}
