package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/notify-daemon/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StatusCount struct {
	Status domain.Status `gorm:"column:status"`
	Count  int64         `gorm:"column:count"`
}

// ClientRepository owns client records and their state transitions.
type ClientRepository interface {
	// ClaimBatch moves up to limit pending clients to processing under procName
	// and returns them as they were before the update.
	ClaimBatch(ctx context.Context, limit int, procName string) ([]domain.Client, error)
	// Finalize stores the terminal status and channel flags of one client.
	Finalize(ctx context.Context, outcome domain.Outcome) error
	Create(ctx context.Context, c *domain.Client) error
	GetByID(ctx context.Context, id int64) (*domain.Client, error)
	CountByStatus(ctx context.Context) ([]StatusCount, error)
}

var _ ClientRepository = (*GormClientRepo)(nil)

type GormClientRepo struct {
	db *gorm.DB
}

func NewGormClientRepo(db *gorm.DB) *GormClientRepo {
	return &GormClientRepo{db: db}
}

func (r *GormClientRepo) ClaimBatch(ctx context.Context, limit int, procName string) ([]domain.Client, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: claim limit must be positive, got %d", domain.ErrValidation, limit)
	}
	if strings.TrimSpace(procName) == "" {
		return nil, fmt.Errorf("%w: proc name is required", domain.ErrValidation)
	}

	var models []ClientModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Rows locked by a concurrent claim are skipped rather than waited on.
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", domain.StatusPending).
			Order("id ASC").
			Limit(limit).
			Find(&models).Error; err != nil {
			return fmt.Errorf("failed to select pending clients: %w", err)
		}
		if len(models) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(models))
		for i := range models {
			ids = append(ids, models[i].ID)
		}

		result := tx.Model(&ClientModel{}).
			Where("id IN ? AND status = ?", ids, domain.StatusPending).
			Updates(map[string]any{
				"status":    domain.StatusProcessing,
				"proc_name": procName,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to mark clients as processing: %w", result.Error)
		}
		if result.RowsAffected != int64(len(ids)) {
			return fmt.Errorf("claimed %d of %d locked clients", result.RowsAffected, len(ids))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	clients := make([]domain.Client, 0, len(models))
	for i := range models {
		clients = append(clients, *clientModelToDomain(&models[i]))
	}

	return clients, nil
}

func (r *GormClientRepo) Finalize(ctx context.Context, outcome domain.Outcome) error {
	if err := outcome.Validate(); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&ClientModel{}).
			Where("id = ?", outcome.ClientID).
			Updates(map[string]any{
				"status":        outcome.Status,
				"is_push_sent":  domain.FlagFromBool(outcome.PushSent),
				"is_email_sent": domain.FlagFromBool(outcome.EmailSent),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *GormClientRepo) Create(ctx context.Context, c *domain.Client) error {
	model := clientModelFromDomain(c)
	if model == nil {
		return fmt.Errorf("%w: client is required", domain.ErrValidation)
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	*c = *clientModelToDomain(model)
	return nil
}

func (r *GormClientRepo) GetByID(ctx context.Context, id int64) (*domain.Client, error) {
	var model ClientModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return clientModelToDomain(&model), nil
}

func (r *GormClientRepo) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	var counts []StatusCount
	err := r.db.WithContext(ctx).
		Model(&ClientModel{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Order("status ASC").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}
