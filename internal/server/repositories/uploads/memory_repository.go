package uploads

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dmitrijs2005/intake/internal/common"
	"github.com/dmitrijs2005/intake/internal/server/models"
)

// MemoryRepository is an in-process Repository used by tests and by
// tooling that runs without a database. LockSubmission is a no-op since
// there is no transaction to scope it to.
type MemoryRepository struct {
	mu      sync.Mutex
	uploads map[string]*models.Upload
	order   []string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{uploads: make(map[string]*models.Upload)}
}

func (r *MemoryRepository) Create(_ context.Context, u *models.Upload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.uploads[u.ID]; ok {
		return fmt.Errorf("insert upload: duplicate id %s", u.ID)
	}
	r.uploads[u.ID] = clone(u)
	r.order = append(r.order, u.ID)
	return nil
}

func (r *MemoryRepository) LockSubmission(context.Context, string, string, string) error {
	return nil
}

func (r *MemoryRepository) CountEquivalent(_ context.Context, formName, sid, timePoint, excludeID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, u := range r.uploads {
		if u.ID == excludeID || u.Status == models.StatusRejected {
			continue
		}
		if !strings.EqualFold(u.FormName, formName) {
			continue
		}
		if hasField(u, common.FieldSubjectID, sid) && hasField(u, common.FieldTimePoint, timePoint) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) SelectByStatus(_ context.Context, formName string, status models.Status) ([]*models.Upload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*models.Upload
	for _, id := range r.order {
		u := r.uploads[id]
		if strings.EqualFold(u.FormName, formName) && u.Status == status {
			result = append(result, clone(u))
		}
	}
	return result, nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*models.Upload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.uploads[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return clone(u), nil
}

func (r *MemoryRepository) List(_ context.Context, f ListFilter) ([]*models.Upload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var result []*models.Upload
	for i := len(r.order) - 1; i >= 0 && len(result) < limit; i-- {
		u := r.uploads[r.order[i]]
		if f.FormName != "" && !strings.EqualFold(u.FormName, f.FormName) {
			continue
		}
		if f.Status != "" && u.Status != f.Status {
			continue
		}
		if f.Centre != "" && !hasField(u, common.FieldCentre, f.Centre) {
			continue
		}
		result = append(result, clone(u))
	}
	return result, nil
}

func (r *MemoryRepository) SetStatus(_ context.Context, id string, status models.Status, errMsg *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.uploads[id]
	if !ok {
		return common.ErrNotFound
	}
	u.Status = status
	if errMsg != nil {
		msg := *errMsg
		u.Error = &msg
	} else {
		u.Error = nil
	}
	return nil
}

func (r *MemoryRepository) Dashboard(_ context.Context, f DashboardFilter) ([]models.DashboardCell, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []models.DashboardCell
	for _, id := range r.order {
		u := r.uploads[id]
		switch {
		case f.Centre != "" && !hasField(u, common.FieldCentre, f.Centre):
			continue
		case f.Centre == "" && f.CreatedBy != "" && u.CreatedBy != f.CreatedBy:
			continue
		}
		sid, tp := u.Field(common.FieldSubjectID), u.Field(common.FieldTimePoint)
		if sid == "" || tp == "" {
			continue
		}
		result = append(result, models.DashboardCell{
			UploadID:  u.ID,
			SubjectID: sid,
			TimePoint: tp,
			FormName:  u.FormName,
			Status:    u.Status,
		})
	}
	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.SubjectID != b.SubjectID {
			return a.SubjectID < b.SubjectID
		}
		if a.TimePoint != b.TimePoint {
			return a.TimePoint < b.TimePoint
		}
		return a.FormName < b.FormName
	})
	return result, nil
}

func hasField(u *models.Upload, name, value string) bool {
	for _, f := range u.Fields {
		if f.Name == name && f.Value == value {
			return true
		}
	}
	return false
}

func clone(u *models.Upload) *models.Upload {
	c := *u
	c.Fields = append([]models.UploadField(nil), u.Fields...)
	c.Files = append([]models.UploadFile(nil), u.Files...)
	if u.Error != nil {
		msg := *u.Error
		c.Error = &msg
	}
	return &c
}
