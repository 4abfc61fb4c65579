package app

import (
	"context"
	"fmt"
	"time"

	"github.com/zajavka/zajavka-bot/internal/config"
	"github.com/zajavka/zajavka-bot/internal/controller"
	"github.com/zajavka/zajavka-bot/internal/controller/conversation"
	"github.com/zajavka/zajavka-bot/internal/repository"
	"github.com/zajavka/zajavka-bot/internal/service"
	"github.com/zajavka/zajavka-bot/internal/whatsapp"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// App wires the whole service together: pool, repositories, services,
// notifier and the fiber server. Everything downstream receives its
// dependencies explicitly, clock included.
type App struct {
	cfg      *config.Config
	pool     *pgxpool.Pool
	fiber    *fiber.App
	notifier *service.Notifier
	logger   *zap.Logger
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	migrator, err := NewMigrator(pool, cfg.MigrationsPath, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	defer migrator.Close()
	if err := migrator.Run(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	now := time.Now

	participantRepo := repository.NewParticipantRepository(pool)
	classRepo := repository.NewClassRepository(pool)
	absenceRepo := repository.NewAbsenceRepository(pool)
	slotRepo := repository.NewSlotRepository(pool)
	creditRepo := repository.NewCreditRepository(pool)
	messageLogRepo := repository.NewMessageLogRepository(pool)
	ledger := repository.NewLedger(pool)

	client := whatsapp.NewClient(cfg.WAAPIBase, cfg.WAToken, cfg.WAPhoneNumberID, logger)
	dispatch := controller.NewAuditedDispatch(client, messageLogRepo, logger)

	notifier := service.NewNotifier(participantRepo, dispatch, logger)

	directory := service.NewDirectoryService(participantRepo, logger)
	schedule := service.NewScheduleService(classRepo, slotRepo, absenceRepo, creditRepo, now, logger)
	reconcile := service.NewReconcileService(ledger, notifier, now, logger)

	handler := &conversation.Handler{
		Engine:   reconcile,
		Schedule: schedule,
		Dispatch: dispatch,
		Logger:   logger,
		Now:      now,
	}

	server := fiber.New(fiber.Config{
		AppName:               "zajavka-bot",
		DisableStartupMessage: cfg.Environment == "production",
	})
	controller.NewWebhookController(cfg.WAVerifyToken, directory, handler, messageLogRepo, logger).Register(server)

	return &App{
		cfg:      cfg,
		pool:     pool,
		fiber:    server,
		notifier: notifier,
		logger:   logger,
	}, nil
}

// Run starts the notifier and serves HTTP until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	a.notifier.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.fiber.Listen(a.cfg.ListenAddr)
	}()

	a.logger.Info("Webhook server listening", zap.String("addr", a.cfg.ListenAddr))

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
		a.logger.Info("Shutting down")
		if err := a.fiber.ShutdownWithTimeout(10 * time.Second); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// Close releases the database pool.
func (a *App) Close() {
	a.pool.Close()
}
