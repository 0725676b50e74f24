package repository

import (
	"context"
	"fmt"
	"testing"

	"rollup-service/internal/model"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Project{}, &model.Component{}))

	return db
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestRootComponentsExcludesChildren(t *testing.T) {
	db := testDB(t)
	repo := NewComponentRepository(db, testLogger())

	project := model.Project{TenantID: "t1", Name: "P"}
	require.NoError(t, db.Create(&project).Error)

	rootA := model.Component{ProjectID: project.ID, Name: "A"}
	rootB := model.Component{ProjectID: project.ID, Name: "B"}
	require.NoError(t, db.Create(&rootA).Error)
	require.NoError(t, db.Create(&rootB).Error)

	child := model.Component{ProjectID: project.ID, ParentID: &rootA.ID, Name: "A.1"}
	require.NoError(t, db.Create(&child).Error)

	other := model.Project{TenantID: "t1", Name: "Q"}
	require.NoError(t, db.Create(&other).Error)
	require.NoError(t, db.Create(&model.Component{ProjectID: other.ID, Name: "X"}).Error)

	roots, err := repo.RootComponents(context.Background(), project.ID)
	require.NoError(t, err)
	require.Len(t, roots, 2)

	names := []string{roots[0].Name, roots[1].Name}
	assert.ElementsMatch(t, []string{"A", "B"}, names)
	for _, r := range roots {
		assert.True(t, r.IsRoot())
	}
}

func TestUpdateAggregatesPersistsOnlyGivenFields(t *testing.T) {
	db := testDB(t)
	repo := NewProjectRepository(db, testLogger())

	project := model.Project{TenantID: "t1", Name: "P", Progress: 65, ActualCost: 28000}
	require.NoError(t, db.Create(&project).Error)

	err := db.Transaction(func(tx *gorm.DB) error {
		locked, err := repo.GetForUpdateTx(tx, project.ID)
		if err != nil {
			return err
		}
		assert.InDelta(t, 65.0, locked.Progress, 0.0001)

		return repo.UpdateAggregatesTx(tx, project.ID, map[string]interface{}{
			"progress": 70.0,
		})
	})
	require.NoError(t, err)

	got, err := repo.GetByID(context.Background(), project.ID)
	require.NoError(t, err)
	assert.InDelta(t, 70.0, got.Progress, 0.0001)
	assert.InDelta(t, 28000.0, got.ActualCost, 0.0001)
}

func TestUpdateAggregatesNoFieldsIsNoop(t *testing.T) {
	db := testDB(t)
	repo := NewProjectRepository(db, testLogger())

	project := model.Project{TenantID: "t1", Name: "P", Progress: 65}
	require.NoError(t, db.Create(&project).Error)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return repo.UpdateAggregatesTx(tx, project.ID, nil)
	}))

	got, err := repo.GetByID(context.Background(), project.ID)
	require.NoError(t, err)
	assert.InDelta(t, 65.0, got.Progress, 0.0001)
}

func TestGetByIDMissingProject(t *testing.T) {
	repo := NewProjectRepository(testDB(t), testLogger())

	_, err := repo.GetByID(context.Background(), 999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
