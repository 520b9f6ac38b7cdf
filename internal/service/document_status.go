package service

import (
	"time"

	"github.com/noah-isme/registry-api/internal/models"
)

// AggregateStatus derives a document status from the full set of its steps.
//
//   - no steps: registered
//   - any pending step: in_work
//   - every step cancelled: cancelled
//   - otherwise, ignoring cancelled steps, resolved when the latest resolved or
//     approved completion is strictly later than every rejected or returned one;
//     in_work in all other cases
func AggregateStatus(steps []models.WorkflowStep) models.DocumentStatus {
	if len(steps) == 0 {
		return models.DocumentStatusRegistered
	}

	allCancelled := true
	var latestPositive, latestNegative time.Time
	hasPositive, hasNegative := false, false

	for i := range steps {
		step := &steps[i]
		if step.Pending() {
			return models.DocumentStatusInWork
		}
		action := models.StepAction("")
		if step.Action != nil {
			action = *step.Action
		}
		if action == models.StepActionCancelled {
			continue
		}
		allCancelled = false

		var completedAt time.Time
		if step.CompletedAt != nil {
			completedAt = *step.CompletedAt
		}
		switch {
		case action.Positive():
			if !hasPositive || completedAt.After(latestPositive) {
				latestPositive = completedAt
			}
			hasPositive = true
		case action.Negative():
			if !hasNegative || completedAt.After(latestNegative) {
				latestNegative = completedAt
			}
			hasNegative = true
		}
	}

	if allCancelled {
		return models.DocumentStatusCancelled
	}
	if hasPositive && (!hasNegative || latestPositive.After(latestNegative)) {
		return models.DocumentStatusResolved
	}
	return models.DocumentStatusInWork
}

// nextDocumentStatus applies AggregateStatus unless the document sits in a state
// aggregation never leaves.
func nextDocumentStatus(current models.DocumentStatus, steps []models.WorkflowStep) models.DocumentStatus {
	switch current {
	case models.DocumentStatusDraft, models.DocumentStatusArchived, models.DocumentStatusCancelled:
		return current
	}
	return AggregateStatus(steps)
}
