// Package promotion moves quarantined uploads into the canonical archive,
// either directly or after the external authority has accepted them.
package promotion

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dmitrijs2005/intake/internal/common"
	"github.com/dmitrijs2005/intake/internal/lockx"
	"github.com/dmitrijs2005/intake/internal/logging"
	"github.com/dmitrijs2005/intake/internal/server/kinds"
	"github.com/dmitrijs2005/intake/internal/server/ledger"
	"github.com/dmitrijs2005/intake/internal/server/models"
	"github.com/dmitrijs2005/intake/internal/server/repositories/uploads"
)

const systemErrorTemplate = "A system error was raised. Please send the following message to the database administrator.\n\n%s"

// Handoff is the external authority as seen by the reconciler;
// *handoff.Client implements it.
type Handoff interface {
	EnsureReady() error
	Send(ctx context.Context, key, path string, fields map[string]string) error
	Response(key string) (ledger.Response, bool, error)
	MarkDone(key string) (bool, error)
}

// Locker excludes runs in other processes; *lockx.FileLock implements it.
type Locker interface {
	TryLock() error
	Unlock() error
}

type Reconciler struct {
	repo         uploads.Repository
	kinds        *kinds.Registry
	handoff      Handoff
	lock         Locker
	validatedDir string
	logger       logging.Logger

	mu  sync.Mutex
	now func() time.Time
}

func New(repo uploads.Repository, registry *kinds.Registry, h Handoff, lock Locker, validatedDir string, logger logging.Logger) *Reconciler {
	return &Reconciler{
		repo:         repo,
		kinds:        registry,
		handoff:      h,
		lock:         lock,
		validatedDir: validatedDir,
		logger:       logger.With("module", "promotion"),
		now:          time.Now,
	}
}

func (r *Reconciler) acquire() (func(), error) {
	if !r.mu.TryLock() {
		return nil, common.ErrRunInProgress
	}
	if r.lock != nil {
		if err := r.lock.TryLock(); err != nil {
			r.mu.Unlock()
			if errors.Is(err, lockx.ErrLocked) {
				return nil, common.ErrRunInProgress
			}
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
	}
	return func() {
		if r.lock != nil {
			if err := r.lock.Unlock(); err != nil {
				r.logger.Error(context.Background(), "release run lock", "error", err)
			}
		}
		r.mu.Unlock()
	}, nil
}

// Run reconciles every registered kind. It returns common.ErrRunInProgress
// when another run holds the lock. A kind whose selection fails is
// reported in its batch and does not stop the others.
func (r *Reconciler) Run(ctx context.Context) (*RunReport, error) {
	release, err := r.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	report := &RunReport{StartedAt: r.now()}
	for _, k := range r.kinds.All() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		batch, err := r.runKind(ctx, k)
		if err != nil {
			r.logger.Error(ctx, "kind not reconciled", "kind", k.Name, "error", err)
			batch = &BatchReport{Kind: k.Name, Skipped: true, Reason: err.Error()}
		}
		report.Batches = append(report.Batches, batch)
	}
	report.FinishedAt = r.now()

	r.logger.Info(ctx, "reconciliation finished", "kinds", len(report.Batches),
		"duration", report.FinishedAt.Sub(report.StartedAt))
	return report, nil
}

// RunKind reconciles the quarantined uploads of one kind.
func (r *Reconciler) RunKind(ctx context.Context, name string) (*BatchReport, error) {
	k, err := r.kinds.Lookup(name)
	if err != nil {
		return nil, err
	}

	release, err := r.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	return r.runKind(ctx, k)
}

func (r *Reconciler) runKind(ctx context.Context, k *kinds.Kind) (*BatchReport, error) {
	batch := &BatchReport{Kind: k.Name}
	logger := r.logger.With("kind", k.Name)

	list, err := r.repo.SelectByStatus(ctx, k.Name, models.StatusQuarantine)
	if err != nil {
		return nil, fmt.Errorf("select quarantined %s: %w", k.Name, err)
	}
	if len(list) == 0 {
		return batch, nil
	}

	if k.Mode == kinds.External {
		if err := r.handoff.EnsureReady(); err != nil {
			logger.Critical(ctx, "ledger not usable, kind skipped", "error", err)
			batch.Skipped = true
			batch.Reason = err.Error()
			return batch, nil
		}
	}

	for _, u := range list {
		out := r.process(ctx, k, u)
		logger.Info(ctx, "upload reconciled", "upload_id", u.ID, "result", out.Result)
		batch.Outcomes = append(batch.Outcomes, out)
	}
	return batch, nil
}

func (r *Reconciler) process(ctx context.Context, k *kinds.Kind, u *models.Upload) Outcome {
	out := r.safely(ctx, k, u)

	// status first, then retire, so a crash in between never re-forwards
	if k.Mode == kinds.External && out.Result.Terminal() && len(u.Files) > 0 {
		key := u.Files[0].DataName
		if _, err := r.handoff.MarkDone(key); err != nil {
			r.logger.Critical(ctx, "ledger entry not retired", "upload_id", u.ID, "key", key, "error", err)
		}
	}
	return out
}

func (r *Reconciler) safely(ctx context.Context, k *kinds.Kind, u *models.Upload) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			out = r.reject(ctx, u, fmt.Sprintf("panic: %v\n\n%s", p, debug.Stack()))
		}
	}()

	switch k.Mode {
	case kinds.Direct:
		return r.promoteDirect(ctx, k, u)
	case kinds.External:
		return r.promoteExternal(ctx, k, u)
	}
	return r.reject(ctx, u, fmt.Sprintf("kind %s has unknown mode %s", k.Name, k.Mode))
}

func (r *Reconciler) promoteDirect(ctx context.Context, k *kinds.Kind, u *models.Upload) Outcome {
	if len(u.Files) == 0 {
		return r.reject(ctx, u, common.ErrNoUploadedFile.Error())
	}
	for _, f := range u.Files {
		if err := r.promoteFile(k, u, f); err != nil {
			return r.promotionFailed(ctx, u, err)
		}
	}
	return r.settle(ctx, u, models.StatusValidated, nil)
}

func (r *Reconciler) promoteExternal(ctx context.Context, k *kinds.Kind, u *models.Upload) Outcome {
	if len(u.Files) == 0 {
		return r.reject(ctx, u, common.ErrNoUploadedFile.Error())
	}
	f := u.Files[0]
	key := f.DataName

	if err := r.handoff.Send(ctx, key, f.Path, u.FieldMap()); err != nil {
		if errors.Is(err, common.ErrHandoffFailed) {
			return Outcome{UploadID: u.ID, Result: ResultFailed, Diagnostic: err.Error()}
		}
		return r.reject(ctx, u, err.Error())
	}

	resp, ok, err := r.handoff.Response(key)
	if err != nil {
		return r.reject(ctx, u, fmt.Sprintf("read authority response: %v", err))
	}
	if !ok {
		return Outcome{UploadID: u.ID, Result: ResultPending}
	}

	switch resp.Status {
	case ledger.StatusRejected:
		msg := resp.Message
		return r.settle(ctx, u, models.StatusRejected, &msg)
	case ledger.StatusValidated:
		if err := r.promoteFile(k, u, f); err != nil {
			return r.promotionFailed(ctx, u, err)
		}
		return r.settle(ctx, u, models.StatusValidated, nil)
	}
	return r.reject(ctx, u, fmt.Sprintf("unexpected authority status %q for %s", resp.Status, key))
}

// promotionFailed keeps uploads with a bad copy in quarantine and rejects
// on anything else.
func (r *Reconciler) promotionFailed(ctx context.Context, u *models.Upload, err error) Outcome {
	if errors.Is(err, common.ErrHashMismatch) {
		r.logger.Critical(ctx, "copy does not match recorded hash, upload left in quarantine",
			"upload_id", u.ID, "error", err)
		return Outcome{UploadID: u.ID, Result: ResultDeferred, Diagnostic: err.Error()}
	}
	return r.reject(ctx, u, err.Error())
}

// settle writes a terminal status.
func (r *Reconciler) settle(ctx context.Context, u *models.Upload, status models.Status, msg *string) Outcome {
	if err := r.repo.SetStatus(ctx, u.ID, status, msg); err != nil {
		r.logger.Error(ctx, "status update failed", "upload_id", u.ID, "status", status, "error", err)
		return Outcome{UploadID: u.ID, Result: ResultFailed, Diagnostic: err.Error()}
	}
	out := Outcome{UploadID: u.ID, Result: ResultValidated}
	if status == models.StatusRejected {
		out.Result = ResultRejected
	}
	if msg != nil {
		out.Diagnostic = *msg
	}
	return out
}

// reject marks u Rejected with the system error message.
func (r *Reconciler) reject(ctx context.Context, u *models.Upload, diagnostic string) Outcome {
	r.logger.Critical(ctx, "upload rejected on system error", "upload_id", u.ID, "diagnostic", diagnostic)
	msg := fmt.Sprintf(systemErrorTemplate, diagnostic)
	return r.settle(ctx, u, models.StatusRejected, &msg)
}
