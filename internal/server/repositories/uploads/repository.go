package uploads

import (
	"context"

	"github.com/dmitrijs2005/intake/internal/server/models"
)

// ListFilter narrows List. Empty fields are not applied.
type ListFilter struct {
	FormName string
	Status   models.Status
	Centre   string
	Limit    int
}

// DashboardFilter selects the uploads shown on a dashboard, either those
// of one centre or those created by one operator.
type DashboardFilter struct {
	Centre    string
	CreatedBy string
}

type Repository interface {
	// Create inserts the upload with its fields and files.
	Create(ctx context.Context, u *models.Upload) error
	// LockSubmission serialises submissions of the same (form, sid, time point)
	// until the surrounding transaction ends.
	LockSubmission(ctx context.Context, formName, sid, timePoint string) error
	// CountEquivalent counts non-rejected uploads other than excludeID with the
	// same form name (case-insensitive), sid and time point.
	CountEquivalent(ctx context.Context, formName, sid, timePoint, excludeID string) (int, error)
	// SelectByStatus returns uploads of a form (case-insensitive) in the given
	// status, oldest first, with fields and files loaded.
	SelectByStatus(ctx context.Context, formName string, status models.Status) ([]*models.Upload, error)
	Get(ctx context.Context, id string) (*models.Upload, error)
	List(ctx context.Context, f ListFilter) ([]*models.Upload, error)
	// SetStatus updates status and error of one upload in a single statement.
	SetStatus(ctx context.Context, id string, status models.Status, errMsg *string) error
	Dashboard(ctx context.Context, f DashboardFilter) ([]models.DashboardCell, error)
}
