package port

import "context"

type FailureNotifier interface {
	NotifyFailure(ctx context.Context, userEmail string, analysisID string, filename string, errorMsg string) error
}
