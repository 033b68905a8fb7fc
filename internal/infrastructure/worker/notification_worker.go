package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// errNoOpenID marks recipients that cannot be reached through Lark
const errNoOpenID = "no lark open id"

// statusRetry is reported to metrics for failed attempts that stay queued
const statusRetry = "RETRY"

// NotificationWorkerConfig holds configuration for the outbox worker
type NotificationWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	SendTimeout  time.Duration
}

// DefaultNotificationWorkerConfig returns default configuration
func DefaultNotificationWorkerConfig() NotificationWorkerConfig {
	return NotificationWorkerConfig{
		PollInterval: 5 * time.Second,
		BatchSize:    20,
		MaxAttempts:  5,
		SendTimeout:  10 * time.Second,
	}
}

// NotificationStats is a snapshot of worker progress
type NotificationStats struct {
	Running   bool      `json:"running"`
	Sent      int       `json:"sent"`
	Failed    int       `json:"failed"`
	LastPoll  time.Time `json:"last_poll"`
	LastError string    `json:"last_error,omitempty"`
}

// NotificationWorker drains the notification outbox into Lark IM
type NotificationWorker struct {
	config NotificationWorkerConfig

	notifications port.NotificationRepository
	users         port.UserRepository
	sender        port.MessageSender
	metrics       port.MetricsRecorder
	logger        *zap.Logger

	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	sent      int
	failed    int
	lastPoll  time.Time
	lastError error
}

// NewNotificationWorker creates a new outbox worker
func NewNotificationWorker(
	config NotificationWorkerConfig,
	notifications port.NotificationRepository,
	users port.UserRepository,
	sender port.MessageSender,
	metrics port.MetricsRecorder,
	logger *zap.Logger,
) *NotificationWorker {
	defaults := DefaultNotificationWorkerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = defaults.SendTimeout
	}

	return &NotificationWorker{
		config:        config,
		notifications: notifications,
		users:         users,
		sender:        sender,
		metrics:       metrics,
		logger:        logger,
	}
}

// Start begins the worker polling loop
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return errors.New("notification worker already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("NotificationWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize),
		zap.Int("max_attempts", w.config.MaxAttempts))

	go w.pollLoop(runCtx, w.done)
	return nil
}

// Stop cancels the polling loop and waits for the current batch to finish
func (w *NotificationWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	stats := w.Stats()
	w.logger.Info("NotificationWorker stopped",
		zap.Int("sent", stats.Sent),
		zap.Int("failed", stats.Failed))
	return nil
}

// Name returns the worker name for identification
func (w *NotificationWorker) Name() string {
	return "NotificationWorker"
}

// Stats returns a snapshot of delivery counters
func (w *NotificationWorker) Stats() NotificationStats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	stats := NotificationStats{
		Running:  w.isRunning,
		Sent:     w.sent,
		Failed:   w.failed,
		LastPoll: w.lastPoll,
	}
	if w.lastError != nil {
		stats.LastError = w.lastError.Error()
	}
	return stats
}

func (w *NotificationWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Notification poll loop cancelled")
			return

		case <-ticker.C:
			_, err := w.ProcessPending(ctx)

			w.mu.Lock()
			w.lastPoll = time.Now()
			w.lastError = err
			w.mu.Unlock()

			if err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("Failed to process notification outbox", zap.Error(err))
			}
		}
	}
}

// ProcessPending delivers one batch of pending notifications and returns
// how many were sent
func (w *NotificationWorker) ProcessPending(ctx context.Context) (int, error) {
	pending, err := w.notifications.ListPending(ctx, w.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending notifications: %w", err)
	}

	if len(pending) == 0 {
		return 0, nil
	}

	w.logger.Debug("Processing pending notifications", zap.Int("count", len(pending)))

	sent := 0
	for _, n := range pending {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		if err := w.deliver(ctx, n); err != nil {
			w.logger.Warn("Failed to deliver notification",
				zap.Int64("notification_id", n.ID),
				zap.String("recipient_id", n.RecipientID),
				zap.Int("attempt", n.Attempts+1),
				zap.Error(err))

			w.mu.Lock()
			w.failed++
			w.mu.Unlock()
			continue
		}

		sent++
		w.mu.Lock()
		w.sent++
		w.mu.Unlock()
	}

	return sent, nil
}

// deliver sends one notification and records the outcome on its row
func (w *NotificationWorker) deliver(ctx context.Context, n *entity.Notification) error {
	openID, err := w.resolveOpenID(ctx, n.RecipientID)
	if err != nil {
		return err
	}
	if openID == "" {
		w.markFailed(ctx, n, errNoOpenID, true)
		return errors.New(errNoOpenID)
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.config.SendTimeout)
	defer cancel()

	messageID, err := w.sender.SendText(sendCtx, openID, n.Message)
	if err != nil {
		permanent := n.Attempts+1 >= w.config.MaxAttempts
		w.markFailed(ctx, n, err.Error(), permanent)
		return err
	}

	if err := w.notifications.MarkSent(ctx, n.ID); err != nil {
		return fmt.Errorf("failed to mark notification %d sent: %w", n.ID, err)
	}
	w.metrics.NotificationDelivered(entity.NotificationStatusSent)

	w.logger.Info("Notification delivered",
		zap.Int64("notification_id", n.ID),
		zap.String("recipient_id", n.RecipientID),
		zap.String("event_type", n.EventType),
		zap.String("message_id", messageID))
	return nil
}

// resolveOpenID returns the recipient's Lark open id. A recipient missing
// from the directory has none.
func (w *NotificationWorker) resolveOpenID(ctx context.Context, userID string) (string, error) {
	user, err := w.users.GetByID(ctx, userID)
	if errors.Is(err, approval.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up recipient %s: %w", userID, err)
	}
	return user.LarkOpenID, nil
}

func (w *NotificationWorker) markFailed(ctx context.Context, n *entity.Notification, reason string, permanent bool) {
	if err := w.notifications.MarkFailed(ctx, n.ID, reason, permanent); err != nil {
		w.logger.Error("Failed to record notification failure",
			zap.Int64("notification_id", n.ID),
			zap.Error(err))
	}

	status := statusRetry
	if permanent {
		status = entity.NotificationStatusFailed
	}
	w.metrics.NotificationDelivered(status)
}

// Verify interface compliance
var _ Worker = (*NotificationWorker)(nil)
