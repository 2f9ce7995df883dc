package segment

import "github.com/ignite/segment-rules/internal/pkg/logger"

// NoticeKind distinguishes success and failure notices.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeFailure NoticeKind = "failure"
)

// Notice is the user-facing outcome of a mutation.
type Notice struct {
	Kind    NoticeKind
	Message string
	Err     error
}

// Notifier receives one Notice per mutation attempt.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notice) { f(n) }

// LogNotifier writes notices through the structured logger.
type LogNotifier struct{}

// Notify logs n at info level, or warn level for failures.
func (LogNotifier) Notify(n Notice) {
	if n.Kind == NoticeFailure {
		logger.Warn(n.Message, "error", n.Err)
		return
	}
	logger.Info(n.Message)
}

const (
	msgCreated      = "Segment created"
	msgUpdated      = "Segment updated"
	msgDeleted      = "Segment deleted"
	msgCreateFailed = "Failed to create segment"
	msgUpdateFailed = "Failed to update segment"
	msgDeleteFailed = "Failed to delete segment"
)
