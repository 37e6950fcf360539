// Package handoff forwards quarantined files to the external validation
// authority exactly once per ledger key and reads back its verdicts.
package handoff

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/intake/internal/common"
	"github.com/dmitrijs2005/intake/internal/logging"
	"github.com/dmitrijs2005/intake/internal/server/ledger"
)

// Transport delivers one file and its upload fields to the authority.
type Transport interface {
	Deliver(ctx context.Context, key, path string, fields map[string]string) error
}

// Store is the ledger surface the client needs.
type Store interface {
	EnsureReady() error
	HasBeenSent(key string) (bool, error)
	AddSent(key string, at time.Time) (bool, error)
	Response(key string) (ledger.Response, bool, error)
	MarkDone(key string, at time.Time) (bool, error)
}

type Client struct {
	store     Store
	transport Transport
	logger    logging.Logger
	now       func() time.Time
}

func NewClient(store Store, transport Transport, logger logging.Logger) *Client {
	return &Client{
		store:     store,
		transport: transport,
		logger:    logger.With("module", "handoff"),
		now:       time.Now,
	}
}

// EnsureReady checks the ledger before a forwarding pass.
func (c *Client) EnsureReady() error {
	return c.store.EnsureReady()
}

// Send forwards the file unless key was already sent. A transport failure
// is returned wrapped in common.ErrHandoffFailed and nothing is recorded,
// so the next pass tries again.
func (c *Client) Send(ctx context.Context, key, path string, fields map[string]string) error {
	sent, err := c.store.HasBeenSent(key)
	if err != nil {
		return fmt.Errorf("ledger lookup: %w", err)
	}
	if sent {
		return nil
	}

	if err := c.transport.Deliver(ctx, key, path, fields); err != nil {
		c.logger.Critical(ctx, "file not sent to authority", "key", key, "error", err)
		return fmt.Errorf("%w: %s: %v", common.ErrHandoffFailed, key, err)
	}

	if _, err := c.store.AddSent(key, c.now()); err != nil {
		return fmt.Errorf("record sent %s: %w", key, err)
	}
	c.logger.Info(ctx, "file sent to authority", "key", key)
	return nil
}

func (c *Client) Response(key string) (ledger.Response, bool, error) {
	return c.store.Response(key)
}

// MarkDone retires key from the ledger.
func (c *Client) MarkDone(key string) (bool, error) {
	return c.store.MarkDone(key, c.now())
}
