package service

import (
	"context"

	"github.com/onoki/glance/internal/model"
	"github.com/onoki/glance/internal/repository"
)

// ChangeService serves the change feed used for polling sync.
type ChangeService struct {
	changes *repository.ChangeRepository
}

func NewChangeService(changes *repository.ChangeRepository) *ChangeService {
	return &ChangeService{changes: changes}
}

// GetChanges returns every record after sinceID and the new cursor. The
// cursor stays at sinceID when nothing is new.
func (s *ChangeService) GetChanges(ctx context.Context, sinceID int64) (model.ChangeSet, error) {
	recs, err := s.changes.Since(ctx, sinceID)
	if err != nil {
		return model.ChangeSet{}, err
	}
	set := model.ChangeSet{LastID: sinceID, Changes: recs}
	if set.Changes == nil {
		set.Changes = []model.Change{}
	}
	for _, r := range recs {
		if r.ID > set.LastID {
			set.LastID = r.ID
		}
	}
	return set, nil
}
