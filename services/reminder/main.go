package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/planner/internal/config"
	"github.com/planner/internal/logger"
	"github.com/planner/internal/notify"
	"github.com/planner/internal/reminder"
	"github.com/planner/internal/repository"
	"github.com/planner/internal/startup"
)

func main() {
	logger.SetPrefix("reminder")

	app := &cli.App{
		Name:  "reminder",
		Usage: "Send event reminders and daily due-date digests by email.",
		Commands: []*cli.Command{
			watchCommand(),
			onceCommand(),
			pruneCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Errorf("reminder: %v", err)
		os.Exit(1)
	}
}

// setup загружает конфиг (.env читает config.Load) и открывает хранилища и Scanner.
func setup(inMemory bool) (*config.Config, *startup.Backend, *reminder.Scanner, error) {
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)

	var backend *startup.Backend
	if inMemory {
		backend = startup.OpenMemory()
	} else {
		var err error
		backend, err = startup.OpenPostgres(cfg, "reminder: ")
		if err != nil {
			return nil, nil, nil, err
		}
	}
	loc := cfg.Reminder.Location()
	notifier := notify.New(startup.EmailTransport(cfg),
		notify.WithConcurrency(cfg.NotifyConcurrency),
		notify.WithSendTimeout(cfg.NotifyTimeout),
		notify.WithLocation(loc),
	)
	scanner := reminder.NewScanner(backend.Store, backend.Keys, notifier,
		reminder.WithLead(cfg.Reminder.Lead, cfg.Reminder.Window),
		reminder.WithLocation(loc),
	)
	return cfg, backend, scanner, nil
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Run the cron scheduler until SIGINT/SIGTERM.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "memory", Usage: "Use in-memory storage (for local testing)."},
		},
		Action: func(c *cli.Context) error {
			cfg, backend, scanner, err := setup(c.Bool("memory"))
			if err != nil {
				return err
			}
			defer backend.Close()

			sched, err := reminder.NewScheduler(scanner, reminder.Specs{
				Upcoming:    cfg.Reminder.ScanSpec,
				DueToday:    cfg.Reminder.DueTodaySpec,
				DueTomorrow: cfg.Reminder.TomorrowSpec,
			}, cfg.Reminder.Location(), 0)
			if err != nil {
				return fmt.Errorf("scheduler: %w", err)
			}
			sched.Start()
			logger.Infof("reminder: scheduler started (lead %v, window %v, tz %s)", cfg.Reminder.Lead, cfg.Reminder.Window, cfg.Reminder.Location())

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-quit:
				logger.Info("shutdown signal received")
			case <-c.Context.Done():
			}

			stopCtx, cancel := contextWithTimeout(c, 30*time.Second)
			defer cancel()
			sched.Stop(stopCtx)
			logger.Info("reminder: scheduler stopped")
			return nil
		},
	}
}

func onceCommand() *cli.Command {
	return &cli.Command{
		Name:  "once",
		Usage: "Run one pass of a job and print the report as JSON.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "job", Value: "upcoming", Usage: "upcoming | due-today | due-tomorrow"},
			&cli.BoolFlag{Name: "memory", Usage: "Use in-memory storage (for local testing)."},
		},
		Action: func(c *cli.Context) error {
			_, backend, scanner, err := setup(c.Bool("memory"))
			if err != nil {
				return err
			}
			defer backend.Close()

			var rep reminder.Report
			switch c.String("job") {
			case "upcoming":
				rep, err = scanner.Scan(c.Context)
			case "due-today":
				rep, err = scanner.ScanDueToday(c.Context)
			case "due-tomorrow":
				rep, err = scanner.ScanDueTomorrow(c.Context)
			default:
				return fmt.Errorf("unknown job %q", c.String("job"))
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}
}

func pruneCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Delete reminder marks older than N days (Postgres ledger only).",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "days", Value: 30, Usage: "Keep marks for this many days."},
		},
		Action: func(c *cli.Context) error {
			_, backend, _, err := setup(false)
			if err != nil {
				return err
			}
			defer backend.Close()

			before := time.Now().AddDate(0, 0, -c.Int("days"))
			n, err := repository.NewReminderRepository(backend.Pool).Prune(c.Context, before)
			if err != nil {
				return err
			}
			logger.Infof("reminder: pruned %d mark(s) older than %s", n, before.Format(time.RFC3339))
			return nil
		},
	}
}

func contextWithTimeout(c *cli.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(c.Context), d)
}
