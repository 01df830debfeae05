package channel

import (
	"context"

	"github.com/kursadbilgin/notify-daemon/internal/domain"
)

// Channel delivers a notification to one client over a single transport.
// Implementations must be safe for concurrent use; a non-nil error means the
// client was not notified on this channel.
type Channel interface {
	Name() domain.Channel
	Deliver(ctx context.Context, client domain.Client) error
}
