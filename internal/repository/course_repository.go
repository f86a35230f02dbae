//go:generate mockery --name CourseRepository --output ./mocks --outpkg mocks --case=underscore
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

// CourseRepository はコース構造 (章→動画) への読み取り専用アクセス
// コンテンツの管理は外部コラボレータの責務なので書き込み操作は持たない
type CourseRepository interface {
	FindByID(ctx context.Context, db *gorm.DB, courseID uuid.UUID) (*model.Course, error)
	FindByIDWithInstructor(ctx context.Context, db *gorm.DB, courseID uuid.UUID) (*model.Course, error)
	CountVideos(ctx context.Context, db *gorm.DB, courseID uuid.UUID) (int64, error)
	FindVideoByID(ctx context.Context, db *gorm.DB, videoID uuid.UUID) (*model.Video, error)
}

type gormCourseRepository struct{}

func NewGormCourseRepository() CourseRepository {
	return &gormCourseRepository{}
}

func (r *gormCourseRepository) FindByID(ctx context.Context, db *gorm.DB, courseID uuid.UUID) (*model.Course, error) {
	logger := middleware.GetLogger(ctx)
	var course model.Course

	result := db.WithContext(ctx).Where("course_id = ?", courseID).First(&course)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		logger.Error("Error finding course by ID in DB",
			"error", result.Error,
			"course_id", courseID.String(),
		)
		return nil, fmt.Errorf("gormCourseRepository.FindByID: %w", result.Error)
	}
	return &course, nil
}

func (r *gormCourseRepository) FindByIDWithInstructor(ctx context.Context, db *gorm.DB, courseID uuid.UUID) (*model.Course, error) {
	logger := middleware.GetLogger(ctx)
	var course model.Course

	result := db.WithContext(ctx).Preload("Instructor").Where("course_id = ?", courseID).First(&course)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		logger.Error("Error finding course with instructor in DB",
			"error", result.Error,
			"course_id", courseID.String(),
		)
		return nil, fmt.Errorf("gormCourseRepository.FindByIDWithInstructor: %w", result.Error)
	}
	return &course, nil
}

// CountVideos はコース内の全章の動画総数を返します (未視聴の動画も含む)
func (r *gormCourseRepository) CountVideos(ctx context.Context, db *gorm.DB, courseID uuid.UUID) (int64, error) {
	logger := middleware.GetLogger(ctx)
	var count int64

	result := db.WithContext(ctx).Model(&model.Video{}).
		Joins("JOIN chapters ON chapters.chapter_id = videos.chapter_id").
		Where("chapters.course_id = ?", courseID).
		Count(&count)
	if result.Error != nil {
		logger.Error("Error counting course videos in DB",
			"error", result.Error,
			"course_id", courseID.String(),
		)
		return 0, fmt.Errorf("gormCourseRepository.CountVideos: %w", result.Error)
	}
	return count, nil
}

// FindVideoByID は動画を章と一緒に取得します (進捗記録でコースIDを辿るため)
func (r *gormCourseRepository) FindVideoByID(ctx context.Context, db *gorm.DB, videoID uuid.UUID) (*model.Video, error) {
	logger := middleware.GetLogger(ctx)
	var video model.Video

	result := db.WithContext(ctx).Preload("Chapter").Where("video_id = ?", videoID).First(&video)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		logger.Error("Error finding video by ID in DB",
			"error", result.Error,
			"video_id", videoID.String(),
		)
		return nil, fmt.Errorf("gormCourseRepository.FindVideoByID: %w", result.Error)
	}
	if video.Chapter == nil {
		// 章が消えている動画は実質参照不能
		return nil, model.ErrNotFound
	}
	return &video, nil
}
