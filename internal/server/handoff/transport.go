package handoff

import (
	"context"

	"github.com/dmitrijs2005/intake/internal/logging"
)

// NopTransport records nothing remotely: it logs the delivery and reports
// success. It stands in when no authority endpoint is configured, leaving
// responses to arrive through the HTTP channel.
type NopTransport struct {
	Logger logging.Logger
}

func (t NopTransport) Deliver(ctx context.Context, key, path string, _ map[string]string) error {
	if t.Logger != nil {
		t.Logger.Warn(ctx, "no handoff transport configured, delivery skipped", "key", key, "path", path)
	}
	return nil
}
