package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/intake/internal/common"
	"github.com/dmitrijs2005/intake/internal/dbx"
	"github.com/dmitrijs2005/intake/internal/filex"
	"github.com/dmitrijs2005/intake/internal/logging"
	"github.com/dmitrijs2005/intake/internal/server/gate"
	"github.com/dmitrijs2005/intake/internal/server/kinds"
	"github.com/dmitrijs2005/intake/internal/server/models"
	"github.com/dmitrijs2005/intake/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/intake/internal/server/repositories/uploads"
	"github.com/google/uuid"
)

// IncomingFile is one posted file, keyed by the form role it was sent under.
type IncomingFile struct {
	Role     string
	FileName string
	Body     io.Reader
}

type SubmitRequest struct {
	FormName  string
	CreatedBy string
	Fields    map[string]string
	Files     []IncomingFile
}

type UploadService struct {
	db            dbx.Beginner
	reader        dbx.DBTX
	repomanager   repomanager.RepositoryManager
	kinds         *kinds.Registry
	quarantineDir string
	logger        logging.Logger

	newID func() string
	now   func() time.Time
}

func NewUploadService(db *sql.DB, rm repomanager.RepositoryManager, registry *kinds.Registry, quarantineDir string, logger logging.Logger) *UploadService {
	return &UploadService{
		db:            db,
		reader:        db,
		repomanager:   rm,
		kinds:         registry,
		quarantineDir: quarantineDir,
		logger:        logger.With("module", "upload_service"),
		newID:         uuid.NewString,
		now:           time.Now,
	}
}

// Submit stores the files in quarantine, persists the upload and runs the
// submission gate, all under a lock on the (form, sid, time point) triple.
// A flagged upload is kept as Rejected with the report text and the report
// is returned alongside it.
func (s *UploadService) Submit(ctx context.Context, req SubmitRequest) (*models.Upload, *gate.Report, error) {
	kind, err := s.kinds.Lookup(req.FormName)
	if err != nil {
		return nil, nil, err
	}

	var missing []string
	for _, name := range kind.RequiredFields() {
		if _, ok := req.Fields[name]; !ok && !isFlag(kind, name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: %s", common.ErrMissingField, strings.Join(missing, ", "))
	}

	u := &models.Upload{
		ID:        s.newID(),
		FormName:  kind.Name,
		Status:    models.StatusQuarantine,
		CreatedBy: req.CreatedBy,
		CreatedAt: s.now().UTC(),
		Fields:    sortedFields(req.Fields),
	}

	dir := filepath.Join(s.quarantineDir, strings.ToLower(kind.Name), u.ID)
	if err := s.store(dir, u, req.Files); err != nil {
		os.RemoveAll(dir)
		return nil, nil, err
	}

	var report *gate.Report
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Uploads(tx)

		err := repo.LockSubmission(ctx, kind.Name, req.Fields[common.FieldSubjectID], req.Fields[common.FieldTimePoint])
		if err != nil {
			return err
		}
		if err := repo.Create(ctx, u); err != nil {
			return err
		}

		report, err = gate.New(repo, s.kinds).Validate(ctx, req.Fields, u, u.Files)
		if err != nil {
			return err
		}
		if report == nil {
			return nil
		}

		msg := report.String()
		if err := repo.SetStatus(ctx, u.ID, models.StatusRejected, &msg); err != nil {
			return err
		}
		u.Status = models.StatusRejected
		u.Error = &msg
		return nil
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, nil, fmt.Errorf("submit upload: %w", err)
	}

	s.logger.Info(ctx, "upload stored", "upload_id", u.ID, "form", u.FormName, "status", u.Status, "files", len(u.Files))
	return u, report, nil
}

func (s *UploadService) store(dir string, u *models.Upload, files []IncomingFile) error {
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		name := filepath.Base(f.FileName)
		if f.FileName == "" || name == "." || name == ".." || name == string(filepath.Separator) {
			return fmt.Errorf("%w: bad file name %q", common.ErrValidation, f.FileName)
		}
		if seen[name] {
			return fmt.Errorf("%w: file %q posted twice", common.ErrValidation, name)
		}
		seen[name] = true

		path := filepath.Join(dir, name)
		sum, size, err := filex.WriteWithSHA1(path, f.Body)
		if err != nil {
			return fmt.Errorf("store %s: %w", name, err)
		}
		u.Files = append(u.Files, models.UploadFile{
			Role:     f.Role,
			DataName: name,
			Path:     path,
			SHA1Hex:  sum,
			Size:     size,
		})
	}
	return nil
}

func (s *UploadService) Get(ctx context.Context, id string) (*models.Upload, error) {
	return s.repomanager.Uploads(s.reader).Get(ctx, id)
}

func (s *UploadService) List(ctx context.Context, f uploads.ListFilter) ([]*models.Upload, error) {
	return s.repomanager.Uploads(s.reader).List(ctx, f)
}

func (s *UploadService) Dashboard(ctx context.Context, f uploads.DashboardFilter) ([]models.DashboardCell, error) {
	return s.repomanager.Uploads(s.reader).Dashboard(ctx, f)
}

func isFlag(k *kinds.Kind, name string) bool {
	for _, f := range k.ExpectedFlags {
		if f == name {
			return true
		}
	}
	return false
}

func sortedFields(m map[string]string) []models.UploadField {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make([]models.UploadField, 0, len(names))
	for _, n := range names {
		out = append(out, models.UploadField{Name: n, Value: m[n]})
	}
	return out
}
