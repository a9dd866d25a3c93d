package store

import (
	"context"
	stderrors "errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agentfs/agentfs/pkg/errors"
	"github.com/agentfs/agentfs/pkg/utils"
)

// OverlayBaseKey is the fs_overlay_config key recording the base directory
// of an overlay database.
const OverlayBaseKey = "base_path"

// OverlayBase returns the recorded base directory, if any.
func (s *Store) OverlayBase(ctx context.Context) (string, bool, error) {
	var row OverlayConfig
	err := s.db.WithContext(ctx).First(&row, "key = ?", OverlayBaseKey).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, errors.ErrCodeIO, "failed to read overlay configuration")
	}
	return row.Value, true, nil
}

// SetOverlayBase records base as the read-only layer under this database.
func (s *Store) SetOverlayBase(ctx context.Context, base string) error {
	if base == "" {
		return errors.NewError(errors.ErrCodeInvalidArgument, "overlay base cannot be empty")
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&OverlayConfig{Key: OverlayBaseKey, Value: base}).Error
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeIO, "failed to write overlay configuration")
	}
	return nil
}

// AddWhiteout hides path (and everything below it) in the base layer.
func (s *Store) AddWhiteout(ctx context.Context, path string) error {
	p, err := normalize("whiteout", path)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Whiteout{Path: p, CreatedAt: time.Now().Unix()}).Error
	if err != nil {
		return ioError(err, "whiteout", p)
	}
	return nil
}

// RemoveWhiteout drops the marker for path, if present.
func (s *Store) RemoveWhiteout(ctx context.Context, path string) error {
	p, err := normalize("whiteout", path)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Where("path = ?", p).Delete(&Whiteout{}).Error; err != nil {
		return ioError(err, "whiteout", p)
	}
	return nil
}

// IsWhitedOut reports whether path or one of its ancestors carries a whiteout.
func (s *Store) IsWhitedOut(ctx context.Context, path string) (bool, error) {
	p, err := normalize("whiteout", path)
	if err != nil {
		return false, err
	}
	candidates := []string{}
	for current := p; current != "/"; {
		candidates = append(candidates, current)
		current, _ = utils.SplitParent(current)
	}
	if len(candidates) == 0 {
		return false, nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&Whiteout{}).
		Where("path IN ?", candidates).Count(&count).Error; err != nil {
		return false, ioError(err, "whiteout", p)
	}
	return count > 0, nil
}

// WhiteoutsIn returns the names of whited-out direct children of dir.
func (s *Store) WhiteoutsIn(ctx context.Context, dir string) ([]string, error) {
	p, err := normalize("whiteout", dir)
	if err != nil {
		return nil, err
	}
	prefix := p + "/"
	if p == "/" {
		prefix = "/"
	}

	var paths []string
	if err := s.db.WithContext(ctx).Model(&Whiteout{}).
		Where("substr(path, 1, ?) = ?", len(prefix), prefix).
		Pluck("path", &paths).Error; err != nil {
		return nil, ioError(err, "whiteout", p)
	}

	var names []string
	for _, wp := range paths {
		parent, name := utils.SplitParent(wp)
		if parent == p && name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}
