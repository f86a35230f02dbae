//go:generate mockery --name EnrollmentRepository --output ./mocks --outpkg mocks --case=underscore
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go_course_platform/internal/middleware"
	"go_course_platform/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type EnrollmentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, enrollment *model.Enrollment) error
	FindByID(ctx context.Context, db *gorm.DB, enrollmentID uuid.UUID) (*model.Enrollment, error)
	FindByUserAndCourse(ctx context.Context, db *gorm.DB, userID, courseID uuid.UUID) (*model.Enrollment, error)
	FindActiveByUserAndCourse(ctx context.Context, db *gorm.DB, userID, courseID uuid.UUID) (*model.Enrollment, error)
	FindCompletedByUserAndCourse(ctx context.Context, db *gorm.DB, userID, courseID uuid.UUID) (*model.Enrollment, error)
	FindByUser(ctx context.Context, db *gorm.DB, userID uuid.UUID) ([]*model.Enrollment, error)
	TransitionFromActive(ctx context.Context, tx *gorm.DB, enrollmentID uuid.UUID, newStatus model.EnrollmentStatus, completedAt *time.Time) (int64, error)
}

type gormEnrollmentRepository struct{}

func NewGormEnrollmentRepository() EnrollmentRepository {
	return &gormEnrollmentRepository{}
}

func (r *gormEnrollmentRepository) Create(ctx context.Context, tx *gorm.DB, enrollment *model.Enrollment) error {
	logger := middleware.GetLogger(ctx)

	result := tx.WithContext(ctx).Create(enrollment)
	if result.Error != nil {
		// (user_id, course_id) のユニーク制約違反は重複受講として扱う
		// 同時リクエストで存在チェックをすり抜けた場合の最終防衛線
		var pgErr *pgconn.PgError
		if errors.As(result.Error, &pgErr) && pgErr.Code == "23505" {
			logger.Warn("Duplicate key error on create enrollment",
				"error", result.Error,
				"user_id", enrollment.UserID.String(),
				"course_id", enrollment.CourseID.String(),
			)
			return model.ErrConflict
		}

		logger.Error("Error creating enrollment in DB",
			"error", result.Error,
			"user_id", enrollment.UserID.String(),
			"course_id", enrollment.CourseID.String(),
		)
		return fmt.Errorf("gormEnrollmentRepository.Create: %w", result.Error)
	}
	return nil
}

func (r *gormEnrollmentRepository) FindByID(ctx context.Context, db *gorm.DB, enrollmentID uuid.UUID) (*model.Enrollment, error) {
	logger := middleware.GetLogger(ctx)
	var enrollment model.Enrollment

	result := db.WithContext(ctx).Where("enrollment_id = ?", enrollmentID).First(&enrollment)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		logger.Error("Error finding enrollment by ID in DB",
			"error", result.Error,
			"enrollment_id", enrollmentID.String(),
		)
		return nil, fmt.Errorf("gormEnrollmentRepository.FindByID: %w", result.Error)
	}
	return &enrollment, nil
}

func (r *gormEnrollmentRepository) FindByUserAndCourse(ctx context.Context, db *gorm.DB, userID, courseID uuid.UUID) (*model.Enrollment, error) {
	return r.findOne(ctx, db, "user_id = ? AND course_id = ?", userID, courseID)
}

func (r *gormEnrollmentRepository) FindActiveByUserAndCourse(ctx context.Context, db *gorm.DB, userID, courseID uuid.UUID) (*model.Enrollment, error) {
	return r.findOne(ctx, db, "user_id = ? AND course_id = ? AND status = ?", userID, courseID, model.EnrollmentActive)
}

func (r *gormEnrollmentRepository) FindCompletedByUserAndCourse(ctx context.Context, db *gorm.DB, userID, courseID uuid.UUID) (*model.Enrollment, error) {
	return r.findOne(ctx, db, "user_id = ? AND course_id = ? AND status = ?", userID, courseID, model.EnrollmentCompleted)
}

func (r *gormEnrollmentRepository) findOne(ctx context.Context, db *gorm.DB, query string, args ...interface{}) (*model.Enrollment, error) {
	logger := middleware.GetLogger(ctx)
	var enrollment model.Enrollment

	result := db.WithContext(ctx).Where(query, args...).First(&enrollment)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		logger.Error("Error finding enrollment in DB", "error", result.Error)
		return nil, fmt.Errorf("gormEnrollmentRepository.findOne: %w", result.Error)
	}
	return &enrollment, nil
}

func (r *gormEnrollmentRepository) FindByUser(ctx context.Context, db *gorm.DB, userID uuid.UUID) ([]*model.Enrollment, error) {
	logger := middleware.GetLogger(ctx)
	var enrollments []*model.Enrollment

	result := db.WithContext(ctx).
		Preload("Course").
		Where("user_id = ?", userID).
		Order("enrolled_at DESC").
		Find(&enrollments)
	if result.Error != nil {
		logger.Error("Error finding enrollments by user in DB",
			"error", result.Error,
			"user_id", userID.String(),
		)
		return nil, fmt.Errorf("gormEnrollmentRepository.FindByUser: %w", result.Error)
	}
	return enrollments, nil
}

// TransitionFromActive は status = 'active' の行だけを条件付き更新します。
// 影響行数を返すので、0なら「既に遷移済みか存在しない」と判断できる。
// 2つの同時リクエストが両方 100% を検知しても、遷移が起きるのは一度だけ。
func (r *gormEnrollmentRepository) TransitionFromActive(ctx context.Context, tx *gorm.DB, enrollmentID uuid.UUID, newStatus model.EnrollmentStatus, completedAt *time.Time) (int64, error) {
	logger := middleware.GetLogger(ctx)

	updates := map[string]interface{}{"status": newStatus}
	if completedAt != nil {
		updates["completed_at"] = *completedAt
	}

	result := tx.WithContext(ctx).Model(&model.Enrollment{}).
		Where("enrollment_id = ? AND status = ?", enrollmentID, model.EnrollmentActive).
		Updates(updates)
	if result.Error != nil {
		logger.Error("Error transitioning enrollment status in DB",
			"error", result.Error,
			"enrollment_id", enrollmentID.String(),
			"new_status", string(newStatus),
		)
		return 0, fmt.Errorf("gormEnrollmentRepository.TransitionFromActive: %w", result.Error)
	}
	return result.RowsAffected, nil
}
