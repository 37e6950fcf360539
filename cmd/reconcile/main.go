// Command reconcile runs one promotion pass and exits, for hosts that
// schedule the reconciler with cron or systemd timers instead of the
// server's built-in schedule.
package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"

	"github.com/dmitrijs2005/intake/internal/server"
	"github.com/dmitrijs2005/intake/internal/server/config"
	"github.com/dmitrijs2005/intake/internal/server/promotion"
)

type reconcileApp interface {
	Prepare(ctx context.Context) error
	ReconcileOnce(ctx context.Context) (*promotion.RunReport, error)
	Close() error
}

var newApp = func(ctx context.Context, c *config.Config) (reconcileApp, error) {
	return server.NewApp(ctx, c)
}

func main() {
	if err := run(context.Background(), config.LoadConfig(), os.Stdout); err != nil {
		log.Fatalf("%v", err)
	}
}

// run closes the app on every path before returning.
func run(ctx context.Context, cfg *config.Config, out io.Writer) (err error) {
	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := app.Prepare(ctx); err != nil {
		return err
	}

	report, err := app.ReconcileOnce(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
