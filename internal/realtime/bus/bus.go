package bus

import (
	"context"

	"github.com/yungbote/tutorgraph-backend/internal/realtime"
)

type Bus interface {
	Publish(ctx context.Context, ev realtime.GraphEvent) error
	StartForwarder(ctx context.Context, onEvent func(ev realtime.GraphEvent)) error
	Close() error
}
