package domain

import "github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"

type Phase string

const (
	PhaseCreate        Phase = "create"
	PhaseRelationships Phase = "relationships"
	PhaseDone          Phase = "done"
)

// Progress is reported at fixed row intervals and at phase boundaries.
// Percent runs 0-70 during creation and 70-100 during relationship resolution.
type Progress struct {
	RunID      string            `json:"runId"`
	Phase      Phase             `json:"phase"`
	EntityType schema.EntityType `json:"entityType,omitempty"`
	Processed  int               `json:"processed"`
	Total      int               `json:"total"`
	Percent    float64           `json:"percent"`
}

// ProgressFunc must not block.
type ProgressFunc func(Progress)
