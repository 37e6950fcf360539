package cli

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/intake/internal/client/client"
	"github.com/dmitrijs2005/intake/internal/client/config"
	"github.com/dmitrijs2005/intake/internal/logging"
	"github.com/dmitrijs2005/intake/internal/netx"
	"github.com/dmitrijs2005/intake/internal/server/models"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// apiClient is the subset of *client.APIClient the console drives.
type apiClient interface {
	Ping(ctx context.Context) error
	Submit(ctx context.Context, formName string, fields map[string]string, files []netx.FilePart) (*client.SubmitResult, error)
	Get(ctx context.Context, id string) (*models.Upload, error)
	List(ctx context.Context, f client.ListFilter) ([]*models.Upload, error)
	Dashboard(ctx context.Context, centre string) ([]models.DashboardCell, error)
	Reconcile(ctx context.Context) (*client.RunReport, error)
	RecordResponse(ctx context.Context, r client.Response) error
}

type App struct {
	config *config.Config
	api    apiClient
	logger logging.Logger
	reader *bufio.Reader
	out    io.Writer

	mu   sync.RWMutex
	mode Mode
}

func NewApp(c *config.Config, logger logging.Logger) *App {
	return &App{
		config: c,
		api:    client.NewAPIClient(c.ServerURL, c.Operator),
		logger: logger.With("module", "cli"),
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}
}

func (a *App) Mode() Mode {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.mode
}

func (a *App) setMode(ctx context.Context, mode Mode) {
	a.mu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.mu.Unlock()

	if changed {
		a.logger.Info(ctx, "switched mode", "mode", mode)
	}
}

// Run starts the status watcher and blocks in the REPL until EOF or exit.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.checkOnline(ctx)
	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	printlnFn("intake operator console (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
}

func (a *App) getStatus() string {
	s := a.config.Operator
	if m := a.Mode(); m != "" {
		if s != "" {
			s += " "
		}
		s += string(m)
	}
	if s == "" {
		return ""
	}
	return "(" + s + ")"
}

func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err := a.api.Ping(pctx)
	cancel()

	if err != nil {
		a.setMode(ctx, ModeOffline)
		return
	}
	a.setMode(ctx, ModeOnline)
}
