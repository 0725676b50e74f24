package repository

import (
	"context"

	"rollup-service/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type ComponentRepository struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewComponentRepository(db *gorm.DB, log *logrus.Logger) *ComponentRepository {
	return &ComponentRepository{
		db:  db,
		log: log,
	}
}

// RootComponents retrieves the components directly under a project, the only
// ones that participate in the project-level rollup.
func (r *ComponentRepository) RootComponents(ctx context.Context, projectID uint) ([]model.Component, error) {
	return r.rootComponents(r.db.WithContext(ctx), projectID)
}

// RootComponentsTx is RootComponents inside an existing transaction, so the
// rollup reads a consistent snapshot with the locked project row.
func (r *ComponentRepository) RootComponentsTx(tx *gorm.DB, projectID uint) ([]model.Component, error) {
	return r.rootComponents(tx, projectID)
}

func (r *ComponentRepository) rootComponents(db *gorm.DB, projectID uint) ([]model.Component, error) {
	var components []model.Component
	err := db.
		Where("project_id = ? AND parent_id IS NULL", projectID).
		Find(&components).Error

	return components, err
}
