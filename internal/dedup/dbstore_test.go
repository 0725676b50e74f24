package dedup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"rollup-service/internal/model"

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
	require.NoError(t, db.AutoMigrate(&model.DedupEntry{}))

	return db
}

func TestDBStoreMarkAndSeen(t *testing.T) {
	store := NewDBStore(testDB(t), time.Minute)
	ctx := context.Background()

	seen, err := store.Seen(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Mark(ctx, "k1"))

	seen, err = store.Seen(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = store.Seen(ctx, "k2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestDBStoreExpiredReadsAsUnseen(t *testing.T) {
	store := NewDBStore(testDB(t), 10*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, store.Mark(ctx, "k1"))
	time.Sleep(30 * time.Millisecond)

	seen, err := store.Seen(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, seen)

	// re-marking an expired key refreshes its window
	require.NoError(t, store.Mark(ctx, "k1"))
	seen, err = store.Seen(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestDBStorePurgeExpired(t *testing.T) {
	db := testDB(t)
	store := NewDBStore(db, 10*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, store.Mark(ctx, "dead1"))
	require.NoError(t, store.Mark(ctx, "dead2"))
	time.Sleep(30 * time.Millisecond)

	longLived := NewDBStore(db, time.Minute)
	require.NoError(t, longLived.Mark(ctx, "alive"))

	purged, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, purged)

	var count int64
	require.NoError(t, db.Model(&model.DedupEntry{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
