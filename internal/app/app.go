package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/civil"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/action"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/config"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/db"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/handler"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/intake"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/mailer"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/metrics"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/reminder"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/repository"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/router"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/scheduler"
	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/token"
)

const shutdownTimeout = 30 * time.Second

// App holds the wired service
type App struct {
	cfg       *config.Config
	db        *gorm.DB
	engine    *reminder.Engine
	scheduler *scheduler.Scheduler
	handlers  *handler.Handlers
}

// LoadConfig loads and validates the configuration
func LoadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// New connects to the database and wires every component
func New(cfg *config.Config) (*App, error) {
	loc, err := cfg.Reminder.Location()
	if err != nil {
		return nil, err
	}

	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	repo := repository.New(dbConn)

	m := metrics.NewMetrics()

	codec, err := token.NewCodec(cfg.Tokens.Secret, cfg.Tokens.AllowInsecure)
	if err != nil {
		return nil, err
	}
	links := token.NewLinks(codec, cfg.Tokens.PublicBaseURL, cfg.Tokens.ActionTTL, cfg.Tokens.EmailTTL)

	sender, err := newSender(cfg)
	if err != nil {
		return nil, err
	}

	engine := reminder.NewEngine(repo, sender, links, m, reminder.Options{
		SendTimeout: cfg.Mail.SendTimeout,
		Location:    loc,
	})
	resolver := action.NewResolver(repo, codec, m, loc)
	intakeSvc := intake.NewService(repo, m, loc)

	var source intake.Source
	if cfg.Intake.Enabled {
		source = intake.NewIMAPSource(cfg.Intake)
		logrus.Infof("Mailbox intake enabled for %s on %s", cfg.Intake.Mailbox, cfg.Intake.IMAPHost)
	}
	sched := scheduler.New(cfg.Reminder, cfg.Intake, engine, intakeSvc, source)

	return &App{
		cfg:       cfg,
		db:        dbConn,
		engine:    engine,
		scheduler: sched,
		handlers:  handler.NewHandlers(repo, intakeSvc, resolver, sched, cfg.Admin.APIKey),
	}, nil
}

func newSender(cfg *config.Config) (mailer.Sender, error) {
	if cfg.Mail.Transport == "log" {
		logrus.Warn("Mail transport is set to log, reminders will not be delivered")
		return &mailer.LogSender{From: cfg.Mail.From}, nil
	}

	sender, err := mailer.NewGmailSender(&cfg.Gmail)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail sender: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Mail.SendTimeout)
	defer cancel()
	if err := sender.TestConnection(ctx); err != nil {
		logrus.Warnf("Gmail connection check failed: %v", err)
	}
	return sender, nil
}

// Serve runs the HTTP server and the scheduler until ctx is cancelled
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + a.cfg.Server.Port,
		Handler:      router.SetupRouter(a.handlers, a.cfg.Server.AllowedOrigins),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	if a.cfg.Reminder.Enabled {
		if err := a.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		logrus.Info("Reminder scheduler disabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logrus.Infof("Starting HTTP server on port %s", a.cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logrus.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := a.scheduler.Stop(); err != nil {
			logrus.Errorf("Failed to stop scheduler: %v", err)
		}
		a.scheduler.Wait()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logrus.Info("Server stopped gracefully")
	return nil
}

// RunReminders runs the reminder engine once for target, or for today in
// the reminder timezone when target is nil
func (a *App) RunReminders(ctx context.Context, target *civil.Date, dryRun bool) (*reminder.Report, error) {
	date := a.engine.Today()
	if target != nil {
		date = *target
	}
	return a.scheduler.RunOnce(ctx, date, dryRun)
}

// Close releases the database connection
func (a *App) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
