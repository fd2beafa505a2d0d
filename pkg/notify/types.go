package notify

import (
	"context"

	"github.com/cloudcost-tools/cost-sentinel/pkg/model"
)

// Channel is an independent notification transport.
type Channel interface {
	// Name returns the channel identifier used in delivery results.
	Name() string

	// Send delivers an alert. Implementations must be safe for concurrent use.
	Send(ctx context.Context, alert model.Alert) error
}
