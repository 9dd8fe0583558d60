// Package notify delivers leave lifecycle events. The leave service treats
// every notifier as fire-and-forget, so implementations just return errors.
package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/leave"
)

// LogNotifier writes each event as a structured log line.
type LogNotifier struct {
	Logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{Logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, e leave.Event) error {
	fields := []zap.Field{
		zap.String("event_id", e.ID),
		zap.String("type", string(e.Type)),
		zap.String("request_id", e.RequestID),
		zap.String("employee_id", e.EmployeeID),
		zap.Time("occurred_at", e.OccurredAt),
	}
	if e.ManagerID != "" {
		fields = append(fields, zap.String("manager_id", e.ManagerID))
	}
	if len(e.Details) > 0 {
		fields = append(fields, zap.Any("details", e.Details))
	}
	n.Logger.Info("leave notification", fields...)
	return nil
}

// Multi fans an event out to every notifier. All are attempted; the
// failures are joined.
type Multi []leave.Notifier

func (m Multi) Notify(ctx context.Context, e leave.Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ leave.Notifier = (*LogNotifier)(nil)
	_ leave.Notifier = Multi(nil)
)
