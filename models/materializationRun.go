package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"bitbucket.org/mmdatafocus/bakery_backend/utils"
)

// MaterializationRun records one engine run so outcomes stay observable
// after the fact; this is a background job with no synchronous caller.
type MaterializationRun struct {
	ID            int        `gorm:"primary_key" json:"id"`
	RunDate       time.Time  `gorm:"type:date;index;not null" json:"run_date"`
	DeliveryDate  time.Time  `gorm:"type:date;not null" json:"delivery_date"`
	CorrelationId string     `gorm:"size:40;index" json:"correlation_id"`
	StartedAt     time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`

	CandidateCount    int `gorm:"default:0" json:"candidate_count"`
	MaterializedCount int `gorm:"default:0" json:"materialized_count"`
	SkippedBlackout   int `gorm:"default:0" json:"skipped_blackout"`
	SkippedNoNewLines int `gorm:"default:0" json:"skipped_no_new_lines"`
	FailedCount       int `gorm:"default:0" json:"failed_count"`
}

func CreateMaterializationRun(ctx context.Context, runDate, deliveryDate time.Time, correlationId string) (*MaterializationRun, error) {
	db := config.GetDB()
	run := MaterializationRun{
		RunDate:       utils.TruncateToDate(runDate),
		DeliveryDate:  utils.TruncateToDate(deliveryDate),
		CorrelationId: correlationId,
		StartedAt:     time.Now(),
	}
	if err := db.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, &utils.PersistenceError{Op: "create materialization run", Err: err}
	}
	return &run, nil
}

func (r *MaterializationRun) Finish(ctx context.Context) error {
	db := config.GetDB()
	now := time.Now()
	r.FinishedAt = &now
	err := db.WithContext(ctx).Model(&MaterializationRun{}).
		Where("id = ?", r.ID).
		Updates(map[string]interface{}{
			"finished_at":          r.FinishedAt,
			"candidate_count":      r.CandidateCount,
			"materialized_count":   r.MaterializedCount,
			"skipped_blackout":     r.SkippedBlackout,
			"skipped_no_new_lines": r.SkippedNoNewLines,
			"failed_count":         r.FailedCount,
		}).Error
	if err != nil {
		return &utils.PersistenceError{Op: "finish materialization run", Err: err}
	}
	return nil
}
