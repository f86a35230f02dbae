//go:generate mockery --name CertificateRepository --output ./mocks --outpkg mocks --case=underscore
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

type CertificateRepository interface {
	Create(ctx context.Context, tx *gorm.DB, certificate *model.Certificate) error
	FindByUserAndCourse(ctx context.Context, db *gorm.DB, userID, courseID uuid.UUID) (*model.Certificate, error)
	FindByNumber(ctx context.Context, db *gorm.DB, certificateNumber string) (*model.Certificate, error)
	FindByUser(ctx context.Context, db *gorm.DB, userID uuid.UUID) ([]*model.Certificate, error)
	NumberExists(ctx context.Context, db *gorm.DB, certificateNumber string) (bool, error)
}

type gormCertificateRepository struct{}

func NewGormCertificateRepository() CertificateRepository {
	return &gormCertificateRepository{}
}

func (r *gormCertificateRepository) Create(ctx context.Context, tx *gorm.DB, certificate *model.Certificate) error {
	logger := middleware.GetLogger(ctx)

	result := tx.WithContext(ctx).Create(certificate)
	if result.Error != nil {
		// (user_id, course_id) / enrollment_id / certificate_number いずれかの
		// ユニーク制約違反。発行の競合はここで弾かれ、サービス層が既存を返す。
		var pgErr *pgconn.PgError
		if errors.As(result.Error, &pgErr) && pgErr.Code == "23505" {
			logger.Warn("Duplicate key error on create certificate",
				"user_id", certificate.UserID.String(),
				"course_id", certificate.CourseID.String(),
			)
			return model.ErrConflict
		}
		logger.Error("Error creating certificate in DB",
			"error", result.Error,
			"user_id", certificate.UserID.String(),
			"course_id", certificate.CourseID.String(),
		)
		return fmt.Errorf("gormCertificateRepository.Create: %w", result.Error)
	}
	return nil
}

func (r *gormCertificateRepository) FindByUserAndCourse(ctx context.Context, db *gorm.DB, userID, courseID uuid.UUID) (*model.Certificate, error) {
	logger := middleware.GetLogger(ctx)
	var certificate model.Certificate

	result := db.WithContext(ctx).Where("user_id = ? AND course_id = ?", userID, courseID).First(&certificate)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		logger.Error("Error finding certificate in DB",
			"error", result.Error,
			"user_id", userID.String(),
			"course_id", courseID.String(),
		)
		return nil, fmt.Errorf("gormCertificateRepository.FindByUserAndCourse: %w", result.Error)
	}
	return &certificate, nil
}

func (r *gormCertificateRepository) FindByNumber(ctx context.Context, db *gorm.DB, certificateNumber string) (*model.Certificate, error) {
	logger := middleware.GetLogger(ctx)
	var certificate model.Certificate

	result := db.WithContext(ctx).
		Preload("User").
		Preload("Course").
		Where("certificate_number = ?", certificateNumber).
		First(&certificate)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		logger.Error("Error finding certificate by number in DB",
			"error", result.Error,
		)
		return nil, fmt.Errorf("gormCertificateRepository.FindByNumber: %w", result.Error)
	}
	return &certificate, nil
}

func (r *gormCertificateRepository) FindByUser(ctx context.Context, db *gorm.DB, userID uuid.UUID) ([]*model.Certificate, error) {
	logger := middleware.GetLogger(ctx)
	var certificates []*model.Certificate

	result := db.WithContext(ctx).
		Preload("Course").
		Where("user_id = ?", userID).
		Order("issued_at DESC").
		Find(&certificates)
	if result.Error != nil {
		logger.Error("Error finding certificates by user in DB",
			"error", result.Error,
			"user_id", userID.String(),
		)
		return nil, fmt.Errorf("gormCertificateRepository.FindByUser: %w", result.Error)
	}
	return certificates, nil
}

func (r *gormCertificateRepository) NumberExists(ctx context.Context, db *gorm.DB, certificateNumber string) (bool, error) {
	logger := middleware.GetLogger(ctx)
	var count int64

	result := db.WithContext(ctx).Model(&model.Certificate{}).
		Where("certificate_number = ?", certificateNumber).
		Count(&count)
	if result.Error != nil {
		logger.Error("Error checking certificate number existence in DB",
			"error", result.Error,
		)
		return false, fmt.Errorf("gormCertificateRepository.NumberExists: %w", result.Error)
	}
	return count > 0, nil
}
