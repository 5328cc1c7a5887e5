package db

import (
	"context"
	"errors"
	"time"

	"daon/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DetectionRepository struct {
	db *gorm.DB
}

func NewDetectionRepository(db *gorm.DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

func (r *DetectionRepository) Append(ctx context.Context, event domain.DetectionEvent) (domain.DetectionEvent, error) {
	if r.db == nil {
		return domain.DetectionEvent{}, errDBUnavailable
	}
	if event.SubmittedHash == "" || event.MatchedRecord == "" {
		return domain.DetectionEvent{}, errors.New("submitted and matched hashes are required")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.DetectedAt.IsZero() {
		event.DetectedAt = time.Now().UTC()
	}

	metaJSON, err := marshalStringMap(event.CallerMeta)
	if err != nil {
		return domain.DetectionEvent{}, err
	}
	model := DetectionEventModel{
		ID:             event.ID,
		SubmittedHash:  event.SubmittedHash,
		MatchedLevel:   string(event.MatchedLevel),
		MatchedRecord:  event.MatchedRecord,
		CallerMetaJSON: metaJSON,
		DetectedAt:     event.DetectedAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.DetectionEvent{}, err
	}
	return event, nil
}

// ListByMatchedRecord returns the detection history for one record,
// newest first.
func (r *DetectionRepository) ListByMatchedRecord(ctx context.Context, hash string) ([]domain.DetectionEvent, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []DetectionEventModel
	if err := r.db.WithContext(ctx).
		Where("matched_record = ?", hash).
		Order("detected_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.DetectionEvent, 0, len(models))
	for _, m := range models {
		meta, err := unmarshalStringMap(m.CallerMetaJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.DetectionEvent{
			ID:            m.ID,
			SubmittedHash: m.SubmittedHash,
			MatchedLevel:  domain.MatchLevel(m.MatchedLevel),
			MatchedRecord: m.MatchedRecord,
			CallerMeta:    meta,
			DetectedAt:    m.DetectedAt.UTC(),
		})
	}
	return out, nil
}
