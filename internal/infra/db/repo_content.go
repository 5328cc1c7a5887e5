package db

import (
	"context"
	"errors"
	"time"

	"daon/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ContentRepository struct {
	db *gorm.DB
}

func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// Create inserts the record. The primary key on content_hash is the
// authoritative duplicate guard: a conflicting insert affects zero rows
// and surfaces as ErrDuplicateRejected.
func (r *ContentRepository) Create(ctx context.Context, record domain.ContentRecord) (domain.ContentRecord, error) {
	if r.db == nil {
		return domain.ContentRecord{}, errDBUnavailable
	}
	if record.ContentHash == "" || record.NormalizedHash == "" || record.PerceptualHash == "" {
		return domain.ContentRecord{}, errors.New("content identity is required")
	}
	if record.Owner == "" {
		return domain.ContentRecord{}, errors.New("owner is required")
	}

	metaJSON, err := marshalStringMap(record.Metadata)
	if err != nil {
		return domain.ContentRecord{}, err
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	model := ContentRecordModel{
		ContentHash:     record.ContentHash,
		NormalizedHash:  record.NormalizedHash,
		PerceptualHash:  record.PerceptualHash,
		Owner:           record.Owner,
		Creator:         record.Creator,
		License:         record.License,
		PreviousVersion: record.PreviousVersion,
		Platform:        record.Platform,
		MetadataJSON:    metaJSON,
		CreatedAt:       createdAt.UTC(),
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model)
	if result.Error != nil {
		return domain.ContentRecord{}, result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ContentRecord{}, &domain.DuplicateError{ContentHash: record.ContentHash}
	}

	record.CreatedAt = model.CreatedAt
	return record, nil
}

func (r *ContentRepository) GetByHash(ctx context.Context, hash string) (domain.ContentRecord, error) {
	return r.getOne(ctx, "content_hash = ?", hash)
}

// GetByNormalizedHash returns the oldest record sharing the normalized
// fingerprint; several accepted revisions may share it.
func (r *ContentRepository) GetByNormalizedHash(ctx context.Context, hash string) (domain.ContentRecord, error) {
	return r.getOne(ctx, "normalized_hash = ?", hash)
}

func (r *ContentRepository) GetByPerceptualHash(ctx context.Context, hash string) (domain.ContentRecord, error) {
	return r.getOne(ctx, "perceptual_hash = ?", hash)
}

func (r *ContentRepository) getOne(ctx context.Context, query, arg string) (domain.ContentRecord, error) {
	if r.db == nil {
		return domain.ContentRecord{}, errDBUnavailable
	}
	var model ContentRecordModel
	err := r.db.WithContext(ctx).
		Where(query, arg).
		Order("created_at ASC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ContentRecord{}, domain.ErrContentNotFound
		}
		return domain.ContentRecord{}, err
	}
	return r.hydrate(ctx, model)
}

// Transfer performs the ownership mutation atomically: the UPDATE is
// conditioned on the current owner, so a racing transfer that committed
// first leaves zero rows affected and the loser gets
// ErrUnauthorizedTransfer.
func (r *ContentRepository) Transfer(ctx context.Context, hash, fromOwner, toOwner string, at time.Time) (domain.ContentRecord, error) {
	if r.db == nil {
		return domain.ContentRecord{}, errDBUnavailable
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&ContentRecordModel{}).
			Where("content_hash = ? AND owner = ?", hash, fromOwner).
			Update("owner", toOwner)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&ContentRecordModel{}).
				Where("content_hash = ?", hash).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return domain.ErrContentNotFound
			}
			return domain.ErrUnauthorizedTransfer
		}
		return tx.Create(&TransferEntryModel{
			ContentHash: hash,
			FromOwner:   fromOwner,
			ToOwner:     toOwner,
			TransferAt:  at.UTC(),
		}).Error
	})
	if err != nil {
		return domain.ContentRecord{}, err
	}
	return r.GetByHash(ctx, hash)
}

func (r *ContentRepository) AttachAnchor(ctx context.Context, hash string, anchor domain.LedgerAnchor) error {
	if r.db == nil {
		return errDBUnavailable
	}
	anchoredAt := anchor.AnchoredAt.UTC()
	result := r.db.WithContext(ctx).Model(&ContentRecordModel{}).
		Where("content_hash = ?", hash).
		Updates(map[string]any{
			"anchor_tx_reference": anchor.TxReference,
			"anchor_height":       anchor.Height,
			"anchor_at":           anchoredAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrContentNotFound
	}
	return nil
}

func (r *ContentRepository) hydrate(ctx context.Context, model ContentRecordModel) (domain.ContentRecord, error) {
	metadata, err := unmarshalStringMap(model.MetadataJSON)
	if err != nil {
		return domain.ContentRecord{}, err
	}

	var entries []TransferEntryModel
	if err := r.db.WithContext(ctx).
		Where("content_hash = ?", model.ContentHash).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return domain.ContentRecord{}, err
	}
	history := make([]domain.TransferEntry, 0, len(entries))
	for _, e := range entries {
		history = append(history, domain.TransferEntry{
			ContentHash: e.ContentHash,
			FromOwner:   e.FromOwner,
			ToOwner:     e.ToOwner,
			At:          e.TransferAt.UTC(),
		})
	}

	record := domain.ContentRecord{
		ContentHash:     model.ContentHash,
		NormalizedHash:  model.NormalizedHash,
		PerceptualHash:  model.PerceptualHash,
		Owner:           model.Owner,
		Creator:         model.Creator,
		License:         model.License,
		PreviousVersion: model.PreviousVersion,
		Platform:        model.Platform,
		Metadata:        metadata,
		TransferHistory: history,
		CreatedAt:       model.CreatedAt.UTC(),
	}
	if model.AnchorTxReference != nil {
		record.Anchor = &domain.LedgerAnchor{
			TxReference: *model.AnchorTxReference,
		}
		if model.AnchorHeight != nil {
			record.Anchor.Height = *model.AnchorHeight
		}
		if model.AnchorAt != nil {
			record.Anchor.AnchoredAt = model.AnchorAt.UTC()
		}
	}
	return record, nil
}
