package repositories

import (
	"context"
	"errors"
	"server/internal/database"
	"server/internal/logger"
	. "server/internal/models"
	"server/internal/services"
	"time"

	"gorm.io/gorm"
)

const (
	BLOOD_REQUEST_CACHE_EXPIRY = 5 * time.Minute
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record was modified concurrently")
)

type BloodRequestRepository interface {
	Create(ctx context.Context, request *BloodRequest) error
	GetByRequestID(ctx context.Context, requestID string) (*BloodRequest, error)
	GetByRequestIDForDoctor(ctx context.Context, requestID, doctorID string) (*BloodRequest, error)
	Update(ctx context.Context, request *BloodRequest) error
}

type bloodRequestRepository struct {
	db  database.DB
	log logger.Logger
}

func NewBloodRequest(db database.DB) BloodRequestRepository {
	return &bloodRequestRepository{
		db:  db,
		log: logger.New("bloodRequestRepository"),
	}
}

func (r *bloodRequestRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := services.GetTransaction(ctx); ok {
		return tx
	}
	return r.db.SQLWithContext(ctx)
}

func (r *bloodRequestRepository) Create(ctx context.Context, request *BloodRequest) error {
	log := r.log.Function("Create")

	if err := r.getDB(ctx).Create(request).Error; err != nil {
		return log.Err("failed to create blood request", err, "requestID", request.RequestID)
	}

	if err := r.addRequestToCache(ctx, request); err != nil {
		log.Warn("failed to add blood request to cache", "requestID", request.RequestID, "error", err)
	}

	return nil
}

func (r *bloodRequestRepository) GetByRequestID(ctx context.Context, requestID string) (*BloodRequest, error) {
	log := r.log.Function("GetByRequestID")

	var request BloodRequest
	if found, err := r.getCacheByRequestID(ctx, requestID, &request); err == nil && found {
		return &request, nil
	}

	if err := r.getDB(ctx).
		Preload("DonorResponses", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&request, "request_id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, log.Err("failed to get blood request", err, "requestID", requestID)
	}

	if err := r.addRequestToCache(ctx, &request); err != nil {
		log.Warn("failed to add blood request to cache", "requestID", requestID, "error", err)
	}

	return &request, nil
}

// GetByRequestIDForDoctor scopes the lookup to the owning doctor. A request
// owned by someone else is indistinguishable from a missing one.
func (r *bloodRequestRepository) GetByRequestIDForDoctor(ctx context.Context, requestID, doctorID string) (*BloodRequest, error) {
	request, err := r.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if request.DoctorID != doctorID {
		return nil, ErrNotFound
	}

	return request, nil
}

// Update replaces the whole record. The parent row carries a version counter
// checked on write, so two donors responding at the same instant cannot
// silently overwrite each other; the loser gets ErrConflict and retries.
func (r *bloodRequestRepository) Update(ctx context.Context, request *BloodRequest) error {
	log := r.log.Function("Update")

	err := r.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&BloodRequest{}).
			Where("id = ? AND version = ?", request.ID, request.Version).
			Updates(map[string]any{
				"status":  request.Status,
				"version": request.Version + 1,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConflict
		}

		for i := range request.DonorResponses {
			if err := tx.Save(&request.DonorResponses[i]).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			if cacheErr := database.NewCacheBuilder(r.db.Cache.Request, request.RequestID).Delete(); cacheErr != nil {
				log.Warn("failed to drop stale blood request from cache", "requestID", request.RequestID, "error", cacheErr)
			}
			return ErrConflict
		}
		return log.Err("failed to update blood request", err, "requestID", request.RequestID)
	}

	request.Version++

	if err := r.addRequestToCache(ctx, request); err != nil {
		log.Warn("failed to update blood request in cache", "requestID", request.RequestID, "error", err)
	}

	return nil
}

func (r *bloodRequestRepository) getCacheByRequestID(ctx context.Context, requestID string, request *BloodRequest) (bool, error) {
	found, err := database.NewCacheBuilder(r.db.Cache.Request, requestID).
		WithContext(ctx).
		Get(request)
	if err != nil {
		return false, r.log.Function("getCacheByRequestID").
			Err("failed to get blood request from cache", err, "requestID", requestID)
	}

	return found, nil
}

func (r *bloodRequestRepository) addRequestToCache(ctx context.Context, request *BloodRequest) error {
	if err := database.NewCacheBuilder(r.db.Cache.Request, request.RequestID).
		WithStruct(request).
		WithTTL(BLOOD_REQUEST_CACHE_EXPIRY).
		WithContext(ctx).
		Set(); err != nil {
		return r.log.Function("addRequestToCache").
			Err("failed to add blood request to cache", err, "requestID", request.RequestID)
	}
	return nil
}
