package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFillsDefaults(t *testing.T) {
	evt := New(ComponentProgressUpdated, 5, 7, "", map[string]FieldChange{
		"progress_percent": {Old: 10.0, New: 20.0},
	})

	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, ActorSystem, evt.ActorID)
	assert.Equal(t, uint(5), evt.EntityID)
	assert.Equal(t, uint(7), evt.ProjectID)
	assert.False(t, evt.OccurredAt.IsZero())
}

func TestRepublishedNamesProjectAsEntity(t *testing.T) {
	trigger := New(ComponentProgressUpdated, 5, 7, "user-1", map[string]FieldChange{
		"progress_percent": {Old: 10.0, New: 20.0},
	})

	out := trigger.Republished(ProjectProgressUpdated, "progress", 65, 70)

	assert.Equal(t, ProjectProgressUpdated, out.Name)
	assert.Equal(t, uint(7), out.EntityID)
	assert.Equal(t, uint(7), out.ProjectID)
	assert.Equal(t, "user-1", out.ActorID)
	assert.Equal(t, trigger.ID, out.TriggeredBy)
	assert.NotEqual(t, trigger.ID, out.ID)

	change, ok := out.ChangedFields["progress"]
	require.True(t, ok)
	assert.InDelta(t, 65.0, change.Old.(float64), 0.0001)
	assert.InDelta(t, 70.0, change.New.(float64), 0.0001)
}
