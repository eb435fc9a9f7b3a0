package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"topic-video-pipeline/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RunRecord is the database row of a run; State holds the full snapshot
type RunRecord struct {
	ID        string          `gorm:"primaryKey;size:36" json:"id"`
	Topic     string          `gorm:"size:255;not null" json:"topic"`
	Source    string          `gorm:"size:16;index" json:"source"`
	Status    types.RunStatus `gorm:"size:32;index;default:'pending'" json:"status"`
	Stage     string          `gorm:"size:32" json:"stage"`
	Error     string          `gorm:"type:text" json:"error,omitempty"`
	State     datatypes.JSON  `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (RunRecord) TableName() string {
	return "pipeline_runs"
}

// GormStore keeps runs in Postgres
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the runs table
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&RunRecord{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Save(ctx context.Context, run *types.PipelineRun) error {
	rec, err := toRecord(run)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Save(rec).Error
}

func (s *GormStore) Get(ctx context.Context, id string) (*types.PipelineRun, error) {
	var rec RunRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromRecord(&rec)
}

func (s *GormStore) List(ctx context.Context, limit int) ([]RunSummary, error) {
	var recs []RunRecord
	q := s.db.WithContext(ctx).
		Select("id", "topic", "source", "status", "stage", "error", "updated_at").
		Order("updated_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]RunSummary, 0, len(recs))
	for _, r := range recs {
		out = append(out, RunSummary{
			ID:        r.ID,
			Topic:     r.Topic,
			Source:    r.Source,
			Status:    r.Status,
			Stage:     r.Stage,
			Error:     r.Error,
			UpdatedAt: r.UpdatedAt,
		})
	}
	return out, nil
}

func toRecord(run *types.PipelineRun) (*RunRecord, error) {
	data, err := run.Snapshot()
	if err != nil {
		return nil, err
	}
	var head struct {
		ID        string          `json:"run_id"`
		Query     types.Query     `json:"query"`
		Status    types.RunStatus `json:"status"`
		Stage     string          `json:"stage"`
		Error     string          `json:"error"`
		StartedAt string          `json:"started_at"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	rec := &RunRecord{
		ID:     head.ID,
		Topic:  head.Query.Topic,
		Source: string(head.Query.Source),
		Status: head.Status,
		Stage:  head.Stage,
		Error:  head.Error,
		State:  datatypes.JSON(data),
	}
	if t, err := time.Parse(time.RFC3339, head.StartedAt); err == nil {
		rec.CreatedAt = t
	}
	return rec, nil
}

func fromRecord(rec *RunRecord) (*types.PipelineRun, error) {
	var run types.PipelineRun
	if err := json.Unmarshal(rec.State, &run); err != nil {
		return nil, err
	}
	return &run, nil
}
