//go:generate mockery --name ProgressService --output ./mocks --outpkg mocks --case=underscore
package service

import (
	"context"
	"errors"
	"math"
	"time"

	"go_course_platform/internal/config"
	"go_course_platform/internal/middleware"
	"go_course_platform/internal/model"
	"go_course_platform/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProgressService は動画ごとの視聴進捗とコース完了率を管理します
type ProgressService interface {
	RecordProgress(ctx context.Context, userID, videoID uuid.UUID, req *model.UpdateProgressRequest) (*model.Progress, error)
	GetVideoProgress(ctx context.Context, userID, videoID uuid.UUID) (*model.Progress, error)
	GetCourseProgress(ctx context.Context, userID, courseID uuid.UUID) (*model.CourseProgressResponse, error)
	ListRecent(ctx context.Context, userID uuid.UUID) ([]*model.Progress, error)
}

type progressService struct {
	db             *gorm.DB
	progressRepo   repository.ProgressRepository
	courseRepo     repository.CourseRepository
	enrollmentRepo repository.EnrollmentRepository
	enrollmentSvc  EnrollmentService
	cfg            *config.Config
}

func NewProgressService(db *gorm.DB, progressRepo repository.ProgressRepository, courseRepo repository.CourseRepository, enrollmentRepo repository.EnrollmentRepository, enrollmentSvc EnrollmentService, cfg *config.Config) ProgressService {
	return &progressService{
		db:             db,
		progressRepo:   progressRepo,
		courseRepo:     courseRepo,
		enrollmentRepo: enrollmentRepo,
		enrollmentSvc:  enrollmentSvc,
		cfg:            cfg,
	}
}

// RecordProgress は (userID, videoID) の進捗をupsertします。
// completed は単調増加: リクエストで false が来ても一度 true になった記録は戻さない。
// 無料公開動画 (is_free) は受講登録なしで記録できる。
// 全動画が完了したら受講登録を同期的に completed へ遷移させる。
func (s *progressService) RecordProgress(ctx context.Context, userID, videoID uuid.UUID, req *model.UpdateProgressRequest) (*model.Progress, error) {
	logger := middleware.GetLogger(ctx).With("user_id", userID, "video_id", videoID)

	video, err := s.courseRepo.FindVideoByID(ctx, s.db, videoID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewAppError("NOT_FOUND", "動画が見つかりません。", "video_id", model.ErrNotFound)
		}
		logger.Error("Failed to find video", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "動画の確認中にエラーが発生しました。", "", err)
	}
	courseID := video.Chapter.CourseID

	// アクセス制御: 無料動画はフラグが唯一の根拠。それ以外は有効な受講登録が必要。
	if !video.IsFree {
		enrollment, err := s.enrollmentRepo.FindByUserAndCourse(ctx, s.db, userID, courseID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil, model.NewAppError("FORBIDDEN", "このコースに登録されていないため、進捗を記録できません。", "", model.ErrForbidden)
			}
			logger.Error("Failed to check enrollment for progress", "error", err)
			return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "登録状況の確認中にエラーが発生しました。", "", err)
		}
		if enrollment.Status == model.EnrollmentCancelled {
			return nil, model.NewAppError("FORBIDDEN", "キャンセル済みのコースには進捗を記録できません。", "", model.ErrForbidden)
		}
	}

	var saved *model.Progress

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.progressRepo.FindByUserAndVideo(ctx, tx, userID, videoID)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			logger.Error("Failed to find existing progress", "error", err)
			return model.NewAppError("INTERNAL_SERVER_ERROR", "進捗の確認中にエラーが発生しました。", "", err)
		}

		now := time.Now()

		if existing == nil {
			progress := &model.Progress{
				ProgressID:    uuid.New(),
				UserID:        userID,
				VideoID:       videoID,
				CourseID:      courseID,
				Completed:     req.Completed != nil && *req.Completed,
				LastWatchedAt: now,
			}
			if req.WatchTime != nil {
				progress.WatchTime = *req.WatchTime
			}
			err := s.progressRepo.Create(ctx, tx, progress)
			if err == nil {
				saved = progress
				return nil
			}
			if !errors.Is(err, model.ErrConflict) {
				logger.Error("Failed to create progress", "error", err)
				return model.NewAppError("INTERNAL_SERVER_ERROR", "進捗の記録に失敗しました。", "", err)
			}
			// 同時リクエストに作成で負けた。既存行を読み直して更新パスへ。
			existing, err = s.progressRepo.FindByUserAndVideo(ctx, tx, userID, videoID)
			if err != nil {
				logger.Error("Failed to re-read progress after conflict", "error", err)
				return model.NewAppError("INTERNAL_SERVER_ERROR", "進捗の記録に失敗しました。", "", err)
			}
		}

		updates := map[string]interface{}{
			"last_watched_at": now,
		}
		if req.WatchTime != nil {
			updates["watch_time"] = *req.WatchTime
		}
		// 単調増加: true への遷移のみ反映する
		if req.Completed != nil && *req.Completed && !existing.Completed {
			updates["completed"] = true
		}
		if err := s.progressRepo.Update(ctx, tx, existing.ProgressID, updates); err != nil {
			logger.Error("Failed to update progress", "error", err)
			return model.NewAppError("INTERNAL_SERVER_ERROR", "進捗の更新に失敗しました。", "", err)
		}

		existing.LastWatchedAt = now
		if req.WatchTime != nil {
			existing.WatchTime = *req.WatchTime
		}
		if req.Completed != nil && *req.Completed {
			existing.Completed = true
		}
		saved = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 動画完了時のみコース完了を判定する (未完了への更新では走らせない)
	if saved.Completed && req.Completed != nil && *req.Completed {
		s.maybeCompleteCourse(ctx, userID, courseID)
	}

	return saved, nil
}

// maybeCompleteCourse は全動画完了なら受講登録を completed に遷移させます。
// 進捗の記録自体は成功しているので、ここでの失敗はログに留める。
func (s *progressService) maybeCompleteCourse(ctx context.Context, userID, courseID uuid.UUID) {
	logger := middleware.GetLogger(ctx).With("user_id", userID, "course_id", courseID)

	total, err := s.courseRepo.CountVideos(ctx, s.db, courseID)
	if err != nil {
		logger.Warn("Failed to count course videos for completion check", "error", err)
		return
	}
	if total == 0 {
		return
	}

	completed, err := s.progressRepo.CountCompletedByUserAndCourse(ctx, s.db, userID, courseID)
	if err != nil {
		logger.Warn("Failed to count completed videos", "error", err)
		return
	}
	if completed < total {
		return
	}

	enrollment, err := s.enrollmentRepo.FindActiveByUserAndCourse(ctx, s.db, userID, courseID)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			logger.Warn("Failed to find active enrollment for auto-completion", "error", err)
		}
		// 無料動画だけで完了した未登録ユーザー、または既に completed
		return
	}

	if _, err := s.enrollmentSvc.Complete(ctx, enrollment.EnrollmentID, userID); err != nil {
		logger.Warn("Failed to auto-complete enrollment", "error", err, "enrollment_id", enrollment.EnrollmentID)
		return
	}
	logger.Info("Course auto-completed", "enrollment_id", enrollment.EnrollmentID)
}

// GetVideoProgress は記録がなければゼロ値の進捗を返します (404にはしない)
func (s *progressService) GetVideoProgress(ctx context.Context, userID, videoID uuid.UUID) (*model.Progress, error) {
	progress, err := s.progressRepo.FindByUserAndVideo(ctx, s.db, userID, videoID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return &model.Progress{
				UserID:    userID,
				VideoID:   videoID,
				Completed: false,
				WatchTime: 0,
			}, nil
		}
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "進捗の取得に失敗しました。", "", err)
	}
	return progress, nil
}

// GetCourseProgress はコースの完了率を返します。
// 端数は四捨五入 (3/8 → 38%)。動画が1本もないコースは 0% とする。
func (s *progressService) GetCourseProgress(ctx context.Context, userID, courseID uuid.UUID) (*model.CourseProgressResponse, error) {
	logger := middleware.GetLogger(ctx).With("user_id", userID, "course_id", courseID)

	if _, err := s.courseRepo.FindByID(ctx, s.db, courseID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewAppError("NOT_FOUND", "コースが見つかりません。", "course_id", model.ErrNotFound)
		}
		logger.Error("Failed to find course", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "コースの確認中にエラーが発生しました。", "", err)
	}

	total, err := s.courseRepo.CountVideos(ctx, s.db, courseID)
	if err != nil {
		logger.Error("Failed to count course videos", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "進捗の集計に失敗しました。", "", err)
	}

	completed, err := s.progressRepo.CountCompletedByUserAndCourse(ctx, s.db, userID, courseID)
	if err != nil {
		logger.Error("Failed to count completed videos", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "進捗の集計に失敗しました。", "", err)
	}

	resp := &model.CourseProgressResponse{
		TotalVideos:     int(total),
		CompletedVideos: int(completed),
	}
	if total > 0 {
		resp.Percentage = int(math.Round(float64(completed) / float64(total) * 100))
	}
	return resp, nil
}

// ListRecent は最終視聴日時の降順で直近の進捗を返します (ダッシュボードの「続きから再生」用)
func (s *progressService) ListRecent(ctx context.Context, userID uuid.UUID) ([]*model.Progress, error) {
	limit := s.cfg.App.RecentProgressLimit
	if limit <= 0 {
		limit = config.DefaultRecentLimit
	}

	progresses, err := s.progressRepo.FindRecentByUser(ctx, s.db, userID, limit)
	if err != nil {
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "最近の学習履歴の取得に失敗しました。", "", err)
	}
	return progresses, nil
}
