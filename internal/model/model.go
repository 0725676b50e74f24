package model

import (
	"time"
)

// Project is the aggregate root. Progress and ActualCost are derived values:
// they are only ever written by the rollup processor, never by user-facing
// edit flows.
type Project struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	TenantID   string    `gorm:"index:idx_projects_tenant;size:64;not null" json:"tenant_id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	Progress   float64   `gorm:"type:decimal(5,2);not null;default:0" json:"progress"`
	ActualCost float64   `gorm:"type:decimal(15,2);not null;default:0" json:"actual_cost"`
}

// TableName specifies the table name
func (Project) TableName() string {
	return "projects"
}

// Component belongs to one project and may sit under a parent component.
// Only root components (nil ParentID) feed the project-level rollup.
type Component struct {
	ID              uint      `gorm:"primarykey" json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	ProjectID       uint      `gorm:"index:idx_components_project;not null" json:"project_id"`
	ParentID        *uint     `gorm:"index:idx_components_parent" json:"parent_id"`
	Name            string    `gorm:"size:255;not null" json:"name"`
	ProgressPercent float64   `gorm:"type:decimal(5,2);not null;default:0" json:"progress_percent"`
	PlannedCost     float64   `gorm:"type:decimal(15,2);not null;default:0" json:"planned_cost"`
	ActualCost      float64   `gorm:"type:decimal(15,2);not null;default:0" json:"actual_cost"`
}

// TableName specifies the table name
func (Component) TableName() string {
	return "components"
}

// IsRoot reports whether the component sits directly under its project.
func (c *Component) IsRoot() bool {
	return c.ParentID == nil
}

// DedupEntry marks an already-observed (project, event, payload) tuple.
// Rows past ExpiresAt are dead and get purged by the sweeper.
type DedupEntry struct {
	Key       string    `gorm:"primaryKey;size:128" json:"key"`
	ExpiresAt time.Time `gorm:"index:idx_dedup_expires;not null" json:"expires_at"`
}

// TableName specifies the table name
func (DedupEntry) TableName() string {
	return "rollup_dedup"
}
