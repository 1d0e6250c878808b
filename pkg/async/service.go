package async

import (
	"context"
	"time"
)

// Service is a background worker. Start blocks until ctx is done or the
// service can no longer make progress.
type Service interface {
	Start(ctx context.Context, interval time.Duration) error
}
