package reminder

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/planner/internal/logger"
)

// Specs — cron-выражения трёх заданий. Пустое выражение отключает задание.
type Specs struct {
	Upcoming    string
	DueToday    string
	DueTomorrow string
}

func DefaultSpecs() Specs {
	return Specs{Upcoming: "@every 1m", DueToday: "0 9 * * *", DueTomorrow: "0 18 * * *"}
}

// Scheduler запускает проходы Scanner по расписанию. Один и тот же проход не выполняется параллельно сам с собой.
type Scheduler struct {
	scanner *Scanner
	cron    *cron.Cron
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(scanner *Scanner, specs Specs, loc *time.Location, timeout time.Duration) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	if timeout <= 0 {
		timeout = 50 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		scanner: scanner,
		cron:    cron.New(cron.WithLocation(loc)),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
	jobs := []struct {
		spec string
		name string
		run  func(context.Context) (Report, error)
	}{
		{specs.Upcoming, "upcoming", scanner.Scan},
		{specs.DueToday, "due-today", scanner.ScanDueToday},
		{specs.DueTomorrow, "due-tomorrow", scanner.ScanDueTomorrow},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(j.spec, s.job(j.name, j.run)); err != nil {
			cancel()
			return nil, err
		}
		logger.Infof("reminder: задание %s по расписанию %q", j.name, j.spec)
	}
	return s, nil
}

func (s *Scheduler) job(name string, run func(context.Context) (Report, error)) func() {
	var mu sync.Mutex
	return func() {
		if !mu.TryLock() {
			logger.Warnf("reminder %s: предыдущий проход ещё идёт, пропуск", name)
			return
		}
		defer mu.Unlock()
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("reminder %s: panic: %v", name, r)
			}
		}()
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()
		if _, err := run(ctx); err != nil {
			logger.Errorf("reminder %s: %v", name, err)
		}
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop прерывает идущие проходы и ждёт их завершения (или ctx).
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
