package repository

import (
	"context"

	"rollup-service/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProjectRepository struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewProjectRepository(db *gorm.DB, log *logrus.Logger) *ProjectRepository {
	return &ProjectRepository{
		db:  db,
		log: log,
	}
}

// GetByID retrieves a project without locking.
func (r *ProjectRepository) GetByID(ctx context.Context, id uint) (*model.Project, error) {
	var project model.Project
	err := r.db.WithContext(ctx).First(&project, id).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// GetForUpdateTx retrieves a project inside a transaction with a row lock,
// serializing concurrent rollups for the same project.
func (r *ProjectRepository) GetForUpdateTx(tx *gorm.DB, id uint) (*model.Project, error) {
	var project model.Project
	err := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&project, id).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// UpdateAggregatesTx persists only the given aggregate fields on the locked
// project row. Callers pass just the fields that exceeded tolerance.
func (r *ProjectRepository) UpdateAggregatesTx(tx *gorm.DB, id uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}

	return tx.
		Model(&model.Project{}).
		Where("id = ?", id).
		Updates(fields).Error
}
