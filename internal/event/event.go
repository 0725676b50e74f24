package event

import (
	"time"

	"github.com/google/uuid"
)

// Event names carried on the bus. Component-level names trigger a rollup,
// project-level names are republished after a successful one.
const (
	ComponentProgressUpdated = "Project.Component.ProgressUpdated"
	ComponentCostUpdated     = "Project.Component.CostUpdated"
	ProjectProgressUpdated   = "Project.Project.ProgressUpdated"
	ProjectCostUpdated       = "Project.Project.CostUpdated"
)

// ActorSystem is the actor id used when no authenticated user raised the
// change.
const ActorSystem = "system"

// FieldChange carries the before/after values of a single changed field.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Event is the domain event exchanged over the bus. Triggering events name a
// component as the entity; republished events name the project and carry the
// triggering event's id in TriggeredBy.
type Event struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	EntityID      uint                   `json:"entity_id"`
	ProjectID     uint                   `json:"project_id"`
	ActorID       string                 `json:"actor_id"`
	TriggeredBy   string                 `json:"triggered_by,omitempty"`
	ChangedFields map[string]FieldChange `json:"changed_fields"`
	OccurredAt    time.Time              `json:"occurred_at"`
}

// New builds an event with a fresh id and timestamp.
func New(name string, entityID, projectID uint, actorID string, changed map[string]FieldChange) Event {
	if actorID == "" {
		actorID = ActorSystem
	}
	return Event{
		ID:            uuid.NewString(),
		Name:          name,
		EntityID:      entityID,
		ProjectID:     projectID,
		ActorID:       actorID,
		ChangedFields: changed,
		OccurredAt:    time.Now().UTC(),
	}
}

// Republished derives a project-level follow-on event from the triggering
// event, carrying the old/new values of one changed field.
func (e Event) Republished(name, field string, old, new float64) Event {
	out := New(name, e.ProjectID, e.ProjectID, e.ActorID, map[string]FieldChange{
		field: {Old: old, New: new},
	})
	out.TriggeredBy = e.ID
	return out
}
