//go:generate mockery --name QuizRepository --output ./mocks --outpkg mocks --case=underscore
package repository

import (
	"context"
	"errors"
	"fmt"

	"go_course_platform/internal/middleware"
	"go_course_platform/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type QuizRepository interface {
	FindByChapter(ctx context.Context, db *gorm.DB, chapterID uuid.UUID) (*model.Quiz, error)
	FindByID(ctx context.Context, db *gorm.DB, quizID uuid.UUID) (*model.Quiz, error)
	CreateAttempt(ctx context.Context, tx *gorm.DB, attempt *model.QuizAttempt) error
	FindAttemptsByUserAndQuiz(ctx context.Context, db *gorm.DB, userID, quizID uuid.UUID) ([]*model.QuizAttempt, error)
	FindAttemptByID(ctx context.Context, db *gorm.DB, attemptID uuid.UUID) (*model.QuizAttempt, error)
}

type gormQuizRepository struct{}

func NewGormQuizRepository() QuizRepository {
	return &gormQuizRepository{}
}

func (r *gormQuizRepository) FindByChapter(ctx context.Context, db *gorm.DB, chapterID uuid.UUID) (*model.Quiz, error) {
	logger := middleware.GetLogger(ctx)
	var quiz model.Quiz

	result := db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("quiz_questions.position ASC")
		}).
		Where("chapter_id = ?", chapterID).
		First(&quiz)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		logger.Error("Error finding quiz by chapter in DB",
			"error", result.Error,
			"chapter_id", chapterID.String(),
		)
		return nil, fmt.Errorf("gormQuizRepository.FindByChapter: %w", result.Error)
	}
	return &quiz, nil
}

func (r *gormQuizRepository) FindByID(ctx context.Context, db *gorm.DB, quizID uuid.UUID) (*model.Quiz, error) {
	logger := middleware.GetLogger(ctx)
	var quiz model.Quiz

	result := db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("quiz_questions.position ASC")
		}).
		Where("quiz_id = ?", quizID).
		First(&quiz)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		logger.Error("Error finding quiz by ID in DB",
			"error", result.Error,
			"quiz_id", quizID.String(),
		)
		return nil, fmt.Errorf("gormQuizRepository.FindByID: %w", result.Error)
	}
	return &quiz, nil
}

// CreateAttempt は採点済みの回答を追記します。更新・削除のAPIは意図的に無い。
func (r *gormQuizRepository) CreateAttempt(ctx context.Context, tx *gorm.DB, attempt *model.QuizAttempt) error {
	logger := middleware.GetLogger(ctx)

	result := tx.WithContext(ctx).Create(attempt)
	if result.Error != nil {
		logger.Error("Error creating quiz attempt in DB",
			"error", result.Error,
			"user_id", attempt.UserID.String(),
			"quiz_id", attempt.QuizID.String(),
		)
		return fmt.Errorf("gormQuizRepository.CreateAttempt: %w", result.Error)
	}
	return nil
}

func (r *gormQuizRepository) FindAttemptsByUserAndQuiz(ctx context.Context, db *gorm.DB, userID, quizID uuid.UUID) ([]*model.QuizAttempt, error) {
	logger := middleware.GetLogger(ctx)
	var attempts []*model.QuizAttempt

	result := db.WithContext(ctx).
		Where("user_id = ? AND quiz_id = ?", userID, quizID).
		Order("completed_at DESC").
		Find(&attempts)
	if result.Error != nil {
		logger.Error("Error finding quiz attempts in DB",
			"error", result.Error,
			"user_id", userID.String(),
			"quiz_id", quizID.String(),
		)
		return nil, fmt.Errorf("gormQuizRepository.FindAttemptsByUserAndQuiz: %w", result.Error)
	}
	return attempts, nil
}

func (r *gormQuizRepository) FindAttemptByID(ctx context.Context, db *gorm.DB, attemptID uuid.UUID) (*model.QuizAttempt, error) {
	logger := middleware.GetLogger(ctx)
	var attempt model.QuizAttempt

	result := db.WithContext(ctx).Where("attempt_id = ?", attemptID).First(&attempt)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		logger.Error("Error finding quiz attempt by ID in DB",
			"error", result.Error,
			"attempt_id", attemptID.String(),
		)
		return nil, fmt.Errorf("gormQuizRepository.FindAttemptByID: %w", result.Error)
	}
	return &attempt, nil
}
