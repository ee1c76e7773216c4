package repository

import (
	"context"
	"errors"

	"alumnet/internal/models"
	"alumnet/internal/observability"

	"gorm.io/gorm"
)

// UserRepository is the read-only view of the identity directory. Accounts
// are provisioned by a separate system; this service only resolves them.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByIDs(ctx context.Context, ids []uint) ([]models.User, error)
	ListCandidates(ctx context.Context, excludeIDs []uint, limit int) ([]models.User, error)
}

type userRepository struct {
	db      *gorm.DB
	metrics *observability.DatabaseMetrics
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db, metrics: observability.NewDatabaseMetrics()}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	defer r.metrics.TrackQuery("get", "users")()

	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("User", id)
		}
		// Directory lookups that fail for any other reason are retryable
		// dependency failures, not data errors.
		return nil, models.NewUnavailableError("identity directory unavailable", err)
	}
	return &user, nil
}

func (r *userRepository) GetByIDs(ctx context.Context, ids []uint) ([]models.User, error) {
	defer r.metrics.TrackQuery("list", "users")()

	if len(ids) == 0 {
		return []models.User{}, nil
	}
	var users []models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, models.NewUnavailableError("identity directory unavailable", err)
	}
	return users, nil
}

func (r *userRepository) ListCandidates(ctx context.Context, excludeIDs []uint, limit int) ([]models.User, error) {
	defer r.metrics.TrackQuery("list", "users")()

	q := r.db.WithContext(ctx).Order("id ASC")
	if len(excludeIDs) > 0 {
		q = q.Where("id NOT IN ?", excludeIDs)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var users []models.User
	if err := q.Find(&users).Error; err != nil {
		return nil, models.NewUnavailableError("identity directory unavailable", err)
	}
	return users, nil
}
