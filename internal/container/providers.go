package container

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	infraLark "github.com/garyjia/expense-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/expense-approval/internal/infrastructure/metrics"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/internal/infrastructure/worker"
	"github.com/garyjia/expense-approval/internal/interfaces/websocket"
	"github.com/garyjia/expense-approval/migrations"
	"github.com/garyjia/expense-approval/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *sql.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase opens the database, applies the embedded migrations and
// wraps the connection in a transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		SqlDB:          db.DB,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Expense:        repository.NewExpenseRepository(sqlDB, logger),
		ApprovalRecord: repository.NewApprovalRecordRepository(sqlDB, logger),
		Workflow:       repository.NewWorkflowRepository(sqlDB, logger),
		User:           repository.NewUserRepository(sqlDB, logger),
		Audit:          repository.NewAuditRepository(sqlDB, logger),
		Notification:   repository.NewNotificationRepository(sqlDB, logger),
	}, nil
}

// ProvideDispatcher creates the in-process event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return dispatcher.NewDispatcher(dispatcher.WithLogger(&zapLoggerAdapter{logger: logger})), nil
}

// ProvideMessageSender returns the Lark messenger when delivery is enabled
// and a logging sender otherwise.
func ProvideMessageSender(cfg *LarkConfig, logger *zap.Logger) (port.MessageSender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("lark config is required")
	}
	if !cfg.Enabled {
		logger.Info("Lark delivery disabled, notifications are logged only")
		return infraLark.NewLogSender(logger), nil
	}

	sdk, err := infraLark.NewSDKClient(infraLark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		BaseURL:   cfg.BaseURL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create lark client: %w", err)
	}
	return infraLark.NewMessenger(sdk, logger), nil
}

// ServiceDeps holds dependencies for creating application services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Realtime   port.RealtimePublisher
	Metrics    port.MetricsRecorder
	Approval   *ApprovalConfig
	Logger     *zap.Logger
}

// ProvideServices creates the audit recorder, the notification service, the
// approval engine and the services built on top of them.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil || deps.TxManager == nil || deps.Dispatcher == nil {
		return nil, fmt.Errorf("repositories, transaction manager and dispatcher are required")
	}

	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}
	repos := deps.Repos

	audit := service.NewAuditRecorder(repos.Audit, serviceLogger)

	notifications := service.NewNotificationService(
		deps.Dispatcher,
		repos.User,
		repos.Expense,
		repos.Notification,
		deps.Realtime,
		deps.Metrics,
		serviceLogger,
	)

	opts := []workflow.EngineOption{
		workflow.WithNotificationSink(notifications),
		workflow.WithAuditSink(audit),
		workflow.WithLogger(serviceLogger),
	}
	if deps.Metrics != nil {
		opts = append(opts, workflow.WithMetrics(deps.Metrics))
	}
	if deps.Approval != nil {
		opts = append(opts, workflow.WithMaxConflictRetries(deps.Approval.MaxConflictRetries))
	}

	engine := workflow.NewEngine(
		repos.Expense,
		repos.ApprovalRecord,
		repos.Workflow,
		deps.TxManager,
		opts...,
	)

	return &ServiceBundle{
		Engine:       engine,
		Workflow:     service.NewWorkflowService(repos.Workflow, audit, notifications, serviceLogger),
		Expense:      service.NewExpenseService(repos.Expense, repos.ApprovalRecord, repos.Workflow, repos.Audit, audit, serviceLogger),
		Directory:    service.NewDirectoryService(repos.User, serviceLogger),
		Notification: notifications,
		Audit:        audit,
	}, nil
}

// WorkerDeps holds dependencies for creating workers.
type WorkerDeps struct {
	Repos     *RepositoryBundle
	Sender    port.MessageSender
	Metrics   port.MetricsRecorder
	Hub       *websocket.Hub
	WorkerCfg *NotificationConfig
	Logger    *zap.Logger
}

// ProvideWorkers registers the notification worker and the realtime hub.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Repos == nil || deps.Sender == nil {
		return nil, fmt.Errorf("repositories and message sender are required")
	}

	manager := worker.NewWorkerManager(deps.Logger)

	cfg := worker.DefaultNotificationWorkerConfig()
	if deps.WorkerCfg != nil {
		cfg = worker.NotificationWorkerConfig{
			PollInterval: deps.WorkerCfg.PollInterval,
			BatchSize:    deps.WorkerCfg.BatchSize,
			MaxAttempts:  deps.WorkerCfg.MaxAttempts,
			SendTimeout:  deps.WorkerCfg.SendTimeout,
		}
	}

	manager.Register(worker.NewNotificationWorker(
		cfg,
		deps.Repos.Notification,
		deps.Repos.User,
		deps.Sender,
		deps.Metrics,
		deps.Logger,
	))

	if deps.Hub != nil {
		manager.Register(deps.Hub)
	}

	return manager, nil
}

// ProvideMetrics creates the Prometheus recorder.
func ProvideMetrics(cfg *MetricsConfig) *metrics.Recorder {
	namespace := "expense_approval"
	if cfg != nil && cfg.Namespace != "" {
		namespace = cfg.Namespace
	}
	return metrics.NewRecorder(namespace)
}
