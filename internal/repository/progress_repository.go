//go:generate mockery --name ProgressRepository --output ./mocks --outpkg mocks --case=underscore
package repository

import (
	"context"
	"errors"
	"fmt"

	"go_course_platform/internal/middleware"
	"go_course_platform/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type ProgressRepository interface {
	Create(ctx context.Context, tx *gorm.DB, progress *model.Progress) error
	FindByUserAndVideo(ctx context.Context, db *gorm.DB, userID, videoID uuid.UUID) (*model.Progress, error)
	Update(ctx context.Context, tx *gorm.DB, progressID uuid.UUID, updates map[string]interface{}) error
	CountCompletedByUserAndCourse(ctx context.Context, db *gorm.DB, userID, courseID uuid.UUID) (int64, error)
	FindRecentByUser(ctx context.Context, db *gorm.DB, userID uuid.UUID, limit int) ([]*model.Progress, error)
}

type gormProgressRepository struct{}

func NewGormProgressRepository() ProgressRepository {
	return &gormProgressRepository{}
}

func (r *gormProgressRepository) Create(ctx context.Context, tx *gorm.DB, progress *model.Progress) error {
	logger := middleware.GetLogger(ctx)

	result := tx.WithContext(ctx).Create(progress)
	if result.Error != nil {
		// (user_id, video_id) のユニーク制約違反 → 同時upsertの負け側
		var pgErr *pgconn.PgError
		if errors.As(result.Error, &pgErr) && pgErr.Code == "23505" {
			logger.Warn("Duplicate key error on create progress",
				"user_id", progress.UserID.String(),
				"video_id", progress.VideoID.String(),
			)
			return model.ErrConflict
		}
		logger.Error("Error creating progress in DB",
			"error", result.Error,
			"user_id", progress.UserID.String(),
			"video_id", progress.VideoID.String(),
		)
		return fmt.Errorf("gormProgressRepository.Create: %w", result.Error)
	}
	return nil
}

func (r *gormProgressRepository) FindByUserAndVideo(ctx context.Context, db *gorm.DB, userID, videoID uuid.UUID) (*model.Progress, error) {
	logger := middleware.GetLogger(ctx)
	var progress model.Progress

	result := db.WithContext(ctx).Where("user_id = ? AND video_id = ?", userID, videoID).First(&progress)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		logger.Error("Error finding progress in DB",
			"error", result.Error,
			"user_id", userID.String(),
			"video_id", videoID.String(),
		)
		return nil, fmt.Errorf("gormProgressRepository.FindByUserAndVideo: %w", result.Error)
	}
	return &progress, nil
}

func (r *gormProgressRepository) Update(ctx context.Context, tx *gorm.DB, progressID uuid.UUID, updates map[string]interface{}) error {
	logger := middleware.GetLogger(ctx)
	if len(updates) == 0 {
		return nil
	}
	result := tx.WithContext(ctx).Model(&model.Progress{}).Where("progress_id = ?", progressID).Updates(updates)
	if result.Error != nil {
		logger.Error("Error updating progress in DB",
			"error", result.Error,
			"progress_id", progressID.String(),
		)
		return fmt.Errorf("gormProgressRepository.Update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (r *gormProgressRepository) CountCompletedByUserAndCourse(ctx context.Context, db *gorm.DB, userID, courseID uuid.UUID) (int64, error) {
	logger := middleware.GetLogger(ctx)
	var count int64

	result := db.WithContext(ctx).Model(&model.Progress{}).
		Where("user_id = ? AND course_id = ? AND completed = ?", userID, courseID, true).
		Count(&count)
	if result.Error != nil {
		logger.Error("Error counting completed progress in DB",
			"error", result.Error,
			"user_id", userID.String(),
			"course_id", courseID.String(),
		)
		return 0, fmt.Errorf("gormProgressRepository.CountCompletedByUserAndCourse: %w", result.Error)
	}
	return count, nil
}

func (r *gormProgressRepository) FindRecentByUser(ctx context.Context, db *gorm.DB, userID uuid.UUID, limit int) ([]*model.Progress, error) {
	logger := middleware.GetLogger(ctx)
	var progresses []*model.Progress

	result := db.WithContext(ctx).
		Preload("Video").
		Where("user_id = ?", userID).
		Order("last_watched_at DESC").
		Limit(limit).
		Find(&progresses)
	if result.Error != nil {
		logger.Error("Error finding recent progress in DB",
			"error", result.Error,
			"user_id", userID.String(),
		)
		return nil, fmt.Errorf("gormProgressRepository.FindRecentByUser: %w", result.Error)
	}
	return progresses, nil
}
