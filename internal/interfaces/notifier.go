package interfaces

import "context"

// Notifier is best effort. Implementations log their own failures.
type Notifier interface {
	Notify(ctx context.Context, text string)
}
