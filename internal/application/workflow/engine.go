package workflow

import (
	"context"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// Engine routes submitted expenses through their approval workflow
type Engine interface {
	// Submit moves a draft expense into approval. When the company has no
	// active workflow the expense stays submitted and
	// approval.ErrNoWorkflowConfigured is returned.
	Submit(ctx context.Context, actor entity.Actor, expenseID int64) (*SubmitResult, error)

	// Decide records the actor's decision on one of their pending approval
	// records and applies the resulting verdict to the expense.
	Decide(ctx context.Context, actor entity.Actor, recordID int64, decision approval.RecordStatus, comments string) (*DecisionResult, error)
}

// SubmitResult is the outcome of a successful submission
type SubmitResult struct {
	Expense  *entity.Expense              `json:"expense"`
	Workflow *approval.WorkflowDefinition `json:"workflow"`
	Records  []*approval.Record           `json:"records"`
}

// DecisionResult is the outcome of a recorded decision
type DecisionResult struct {
	Record     *approval.Record     `json:"record"`
	Expense    *entity.Expense      `json:"expense"`
	Assessment approval.Assessment  `json:"assessment"`
	Transition *domainwf.Transition `json:"transition,omitempty"`
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// EngineOption configures the engine
type EngineOption func(*engine)

// WithNotificationSink sets where notification requests are sent
func WithNotificationSink(sink port.NotificationSink) EngineOption {
	return func(e *engine) {
		e.notifier = sink
	}
}

// WithAuditSink sets where audit entries are written
func WithAuditSink(sink port.AuditSink) EngineOption {
	return func(e *engine) {
		e.audit = sink
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m port.MetricsRecorder) EngineOption {
	return func(e *engine) {
		e.metrics = m
	}
}

// WithLogger sets the engine logger
func WithLogger(l Logger) EngineOption {
	return func(e *engine) {
		e.logger = l
	}
}

// WithMaxConflictRetries sets how often a decision is retried after
// losing an optimistic status write
func WithMaxConflictRetries(n int) EngineOption {
	return func(e *engine) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) EngineOption {
	return func(e *engine) {
		e.now = now
	}
}
