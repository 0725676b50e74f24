package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"rollup-service/internal/dedup"
	"rollup-service/internal/event"
	"rollup-service/internal/model"
	"rollup-service/internal/repository"
	"rollup-service/internal/rollup"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	// tolerance suppresses writes for sub-cent rounding noise.
	tolerance = 0.01

	dbTimeout = 10 * time.Second
)

// Terminal states of a handled event.
const (
	StateSkipped     = "skipped"
	StateNoChange    = "committed_noop"
	StateRepublished = "republished"
)

// Bus is the outbound side of the event bus.
type Bus interface {
	Publish(ctx context.Context, evt event.Event) error
}

// Result describes what a single triggering event caused.
type Result struct {
	State     string
	Published []event.Event
}

// Processor recomputes a project's aggregates when one of its components
// changes: guard against duplicates, recompute under a row lock, persist only
// above-tolerance changes, republish per changed field.
type Processor struct {
	db         *gorm.DB
	projects   *repository.ProjectRepository
	components *repository.ComponentRepository
	guard      *dedup.Guard
	bus        Bus
	log        *logrus.Logger
}

func New(
	db *gorm.DB,
	projects *repository.ProjectRepository,
	components *repository.ComponentRepository,
	guard *dedup.Guard,
	bus Bus,
	log *logrus.Logger,
) *Processor {
	return &Processor{
		db:         db,
		projects:   projects,
		components: components,
		guard:      guard,
		bus:        bus,
		log:        log,
	}
}

// Handle runs the full rollup flow for one triggering event and returns the
// terminal state. Errors out of the transaction are returned so the queued
// worker can surface them to the job queue's retry policy.
func (p *Processor) Handle(ctx context.Context, evt event.Event) (Result, error) {
	payload, err := json.Marshal(evt.ChangedFields)
	if err != nil {
		return Result{}, fmt.Errorf("failed to serialize changed fields: %w", err)
	}

	// The tuple is marked before the transaction runs so the dedup window
	// covers the in-flight computation. A retry of an admitted-but-failed
	// attempt must come in through HandleRedelivered or it reads as a
	// duplicate until the TTL lapses.
	if !p.guard.ShouldProcess(ctx, evt.ProjectID, evt.Name, payload) {
		p.log.WithFields(logrus.Fields{
			"project_id": evt.ProjectID,
			"event":      evt.Name,
			"event_id":   evt.ID,
		}).Debug("duplicate event, skipping rollup")
		return Result{State: StateSkipped}, nil
	}

	return p.run(ctx, evt)
}

// HandleRedelivered reruns an event the guard already admitted once. A queue
// redelivery means the first attempt failed after marking the tuple, so the
// guard is bypassed and the rollup recomputes from current component state.
func (p *Processor) HandleRedelivered(ctx context.Context, evt event.Event) (Result, error) {
	return p.run(ctx, evt)
}

func (p *Processor) run(ctx context.Context, evt event.Event) (Result, error) {
	republish, err := p.recalculate(ctx, evt)
	if err != nil {
		return Result{}, err
	}

	if len(republish) == 0 {
		return Result{State: StateNoChange}, nil
	}

	// Publish only after the transaction committed. A failed publish is
	// logged and dropped; the stored aggregates are already correct and the
	// next component change re-converges.
	published := make([]event.Event, 0, len(republish))
	for _, out := range republish {
		if err := p.bus.Publish(ctx, out); err != nil {
			p.log.WithFields(logrus.Fields{
				"project_id": evt.ProjectID,
				"event":      out.Name,
				"error":      err,
			}).Error("failed to republish rollup event")
			continue
		}
		published = append(published, out)
	}

	return Result{State: StateRepublished, Published: published}, nil
}

// HandleInline is the synchronous-in-listener variant: failures are logged
// and swallowed so the user-facing action that raised the event never fails
// on a rollup problem.
func (p *Processor) HandleInline(ctx context.Context, evt event.Event) Result {
	res, err := p.Handle(ctx, evt)
	if err != nil {
		p.log.WithFields(logrus.Fields{
			"project_id": evt.ProjectID,
			"event":      evt.Name,
			"error":      err,
		}).Error("rollup recalculation failed")
	}
	return res
}

func (p *Processor) recalculate(ctx context.Context, evt event.Event) ([]event.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var republish []event.Event

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := p.projects.GetForUpdateTx(tx, evt.ProjectID)
		if err != nil {
			return err
		}

		roots, err := p.components.RootComponentsTx(tx, evt.ProjectID)
		if err != nil {
			return fmt.Errorf("failed to load root components: %w", err)
		}

		warnOnNegativeCosts(roots, p.log)

		newProgress := rollup.ComputeProgress(roots)
		newCost := rollup.ComputeActualCost(roots)

		updates := make(map[string]interface{}, 2)
		republish = republish[:0]

		if math.Abs(project.Progress-newProgress) > tolerance {
			updates["progress"] = newProgress
			republish = append(republish,
				evt.Republished(event.ProjectProgressUpdated, "progress", project.Progress, newProgress))
		}
		if math.Abs(project.ActualCost-newCost) > tolerance {
			updates["actual_cost"] = newCost
			republish = append(republish,
				evt.Republished(event.ProjectCostUpdated, "actual_cost", project.ActualCost, newCost))
		}

		if len(updates) == 0 {
			p.log.WithFields(logrus.Fields{
				"project_id": project.ID,
				"progress":   newProgress,
				"cost":       newCost,
			}).Debug("aggregates within tolerance, nothing to persist")
			return nil
		}

		if err := p.projects.UpdateAggregatesTx(tx, project.ID, updates); err != nil {
			return fmt.Errorf("failed to persist aggregates: %w", err)
		}

		p.log.WithFields(logrus.Fields{
			"project_id":   project.ID,
			"event_id":     evt.ID,
			"old_progress": project.Progress,
			"new_progress": newProgress,
			"old_cost":     project.ActualCost,
			"new_cost":     newCost,
			"fields":       len(updates),
		}).Info("project aggregates updated")

		return nil
	})

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Expected under eventual consistency: the project was deleted
			// while the event was in flight.
			p.log.WithFields(logrus.Fields{
				"project_id": evt.ProjectID,
				"event":      evt.Name,
			}).Info("project not found, abandoning rollup")
			return nil, nil
		}
		return nil, err
	}

	return republish, nil
}

// TriggersRollup reports whether a component changed a field that feeds the
// project aggregates.
func TriggersRollup(evt event.Event) bool {
	if evt.Name != event.ComponentProgressUpdated && evt.Name != event.ComponentCostUpdated {
		return false
	}
	for field := range evt.ChangedFields {
		switch field {
		case "progress_percent", "actual_cost", "planned_cost":
			return true
		}
	}
	return false
}

// warnOnNegativeCosts flags garbage numeric input without rejecting it; the
// calculator treats everything as floats.
func warnOnNegativeCosts(components []model.Component, log *logrus.Logger) {
	for _, c := range components {
		if c.ActualCost < 0 || c.PlannedCost < 0 {
			log.WithFields(logrus.Fields{
				"component_id": c.ID,
				"planned":      c.PlannedCost,
				"actual":       c.ActualCost,
			}).Warn("negative cost on component, will process anyway")
		}
	}
}
