package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestKeyIsStable(t *testing.T) {
	payload := []byte(`{"progress_percent":{"old":40,"new":50}}`)

	assert.Equal(t,
		Key(7, "Project.Component.ProgressUpdated", payload),
		Key(7, "Project.Component.ProgressUpdated", payload),
	)
}

func TestKeyVariesPerTuple(t *testing.T) {
	payload := []byte(`{}`)

	base := Key(7, "Project.Component.ProgressUpdated", payload)
	assert.NotEqual(t, base, Key(8, "Project.Component.ProgressUpdated", payload))
	assert.NotEqual(t, base, Key(7, "Project.Component.CostUpdated", payload))
	assert.NotEqual(t, base, Key(7, "Project.Component.ProgressUpdated", []byte(`{"a":1}`)))
}

func TestGuardAllowsFirstAndSuppressesDuplicate(t *testing.T) {
	guard := NewGuard(NewMemoryStore(time.Minute), testLogger())
	ctx := context.Background()
	payload := []byte(`{"actual_cost":{"old":100,"new":200}}`)

	assert.True(t, guard.ShouldProcess(ctx, 1, "Project.Component.CostUpdated", payload))
	assert.False(t, guard.ShouldProcess(ctx, 1, "Project.Component.CostUpdated", payload))

	// a different payload for the same project is a new tuple
	assert.True(t, guard.ShouldProcess(ctx, 1, "Project.Component.CostUpdated", []byte(`{"actual_cost":{"old":200,"new":300}}`)))
}

func TestGuardAllowsAgainAfterTTL(t *testing.T) {
	guard := NewGuard(NewMemoryStore(50*time.Millisecond), testLogger())
	ctx := context.Background()
	payload := []byte(`{}`)

	require.True(t, guard.ShouldProcess(ctx, 1, "Project.Component.CostUpdated", payload))
	require.False(t, guard.ShouldProcess(ctx, 1, "Project.Component.CostUpdated", payload))

	time.Sleep(80 * time.Millisecond)

	assert.True(t, guard.ShouldProcess(ctx, 1, "Project.Component.CostUpdated", payload))
}
