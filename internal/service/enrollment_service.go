package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go_course_platform/internal/middleware"
	"go_course_platform/internal/model"
	"go_course_platform/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EnrollmentService は受講登録のライフサイクル (active → completed / cancelled) を管理します
type EnrollmentService interface {
	Create(ctx context.Context, userID, courseID uuid.UUID, paymentID *string, amountPaid float64) (*model.Enrollment, error)
	Complete(ctx context.Context, enrollmentID, callerID uuid.UUID) (*model.Enrollment, error)
	Cancel(ctx context.Context, enrollmentID, callerID uuid.UUID) (*model.Enrollment, error)
	IsActivelyEnrolled(ctx context.Context, userID, courseID uuid.UUID) (bool, error)
	List(ctx context.Context, userID uuid.UUID) ([]*model.Enrollment, error)
	Stats(ctx context.Context, userID uuid.UUID) (*model.EnrollmentStatsResponse, error)
}

type enrollmentService struct {
	db             *gorm.DB
	enrollmentRepo repository.EnrollmentRepository
	courseRepo     repository.CourseRepository
	userRepo       repository.UserRepository
	mailer         Mailer
}

func NewEnrollmentService(db *gorm.DB, enrollmentRepo repository.EnrollmentRepository, courseRepo repository.CourseRepository, userRepo repository.UserRepository, mailer Mailer) EnrollmentService {
	return &enrollmentService{
		db:             db,
		enrollmentRepo: enrollmentRepo,
		courseRepo:     courseRepo,
		userRepo:       userRepo,
		mailer:         mailer,
	}
}

// Create は新しい受講登録を作成します。
// 同一 (userID, courseID) の登録が既にあれば (状態を問わず) DUPLICATE_ENROLLMENT。
// 有料コースの場合、呼び出し元 (PaymentService) が署名検証を済ませている前提。
func (s *enrollmentService) Create(ctx context.Context, userID, courseID uuid.UUID, paymentID *string, amountPaid float64) (*model.Enrollment, error) {
	logger := middleware.GetLogger(ctx).With("user_id", userID, "course_id", courseID)

	var created *model.Enrollment
	var courseTitle string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		course, err := s.courseRepo.FindByID(ctx, tx, courseID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return model.NewAppError("NOT_FOUND", "コースが見つかりません。", "course_id", model.ErrNotFound)
			}
			logger.Error("Failed to find course", "error", err)
			return model.NewAppError("INTERNAL_SERVER_ERROR", "コースの確認中にエラーが発生しました。", "", err)
		}
		if !course.Published {
			return model.NewAppError("NOT_FOUND", "このコースは現在受講できません。", "course_id", model.ErrNotFound)
		}
		// 有料コースは決済を経由しない限り登録できない
		if paymentID == nil && course.Price > 0 {
			return model.NewAppError("PAYMENT_REQUIRED", "このコースの受講には決済が必要です。", "course_id", model.ErrForbidden)
		}
		courseTitle = course.Title

		// 既存登録の確認 (キャンセル済みも含む。再受講はこのコアでは非対応)
		_, err = s.enrollmentRepo.FindByUserAndCourse(ctx, tx, userID, courseID)
		if err == nil {
			logger.Warn("Enrollment already exists")
			return model.NewAppError("DUPLICATE_ENROLLMENT", "このコースには既に登録されています。", "", model.ErrConflict)
		}
		if !errors.Is(err, model.ErrNotFound) {
			logger.Error("Failed to check existing enrollment", "error", err)
			return model.NewAppError("INTERNAL_SERVER_ERROR", "登録状況の確認中にエラーが発生しました。", "", err)
		}

		enrollment := &model.Enrollment{
			EnrollmentID: uuid.New(),
			UserID:       userID,
			CourseID:     courseID,
			Status:       model.EnrollmentActive,
			PaymentID:    paymentID,
			AmountPaid:   amountPaid,
			EnrolledAt:   time.Now(),
		}
		if err := s.enrollmentRepo.Create(ctx, tx, enrollment); err != nil {
			// 存在チェックをすり抜けた同時リクエストはユニーク制約で弾かれてここに来る
			if errors.Is(err, model.ErrConflict) {
				logger.Warn("Conflict during enrollment creation (race condition)")
				return model.NewAppError("DUPLICATE_ENROLLMENT", "このコースには既に登録されています。", "", model.ErrConflict)
			}
			logger.Error("Failed to create enrollment", "error", err)
			return model.NewAppError("INTERNAL_SERVER_ERROR", "受講登録の作成に失敗しました。", "", err)
		}

		created = enrollment
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Enrollment created", "enrollment_id", created.EnrollmentID)

	// 登録完了メールはベストエフォート。失敗しても登録自体は成立している。
	s.sendEnrollmentMail(ctx, userID, courseTitle)

	return created, nil
}

// Complete は受講を完了状態に遷移させます。
// active からのみ遷移可能で、既に completed の場合はエラーではなく既存レコードを返す (冪等)。
// 進捗更新の度に重複して呼ばれ得るため、この冪等性は必須。
func (s *enrollmentService) Complete(ctx context.Context, enrollmentID, callerID uuid.UUID) (*model.Enrollment, error) {
	logger := middleware.GetLogger(ctx).With("enrollment_id", enrollmentID)

	var result *model.Enrollment

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		enrollment, err := s.enrollmentRepo.FindByID(ctx, tx, enrollmentID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return model.NewAppError("NOT_FOUND", "受講登録が見つかりません。", "", model.ErrNotFound)
			}
			logger.Error("Failed to find enrollment", "error", err)
			return model.NewAppError("INTERNAL_SERVER_ERROR", "受講登録の確認中にエラーが発生しました。", "", err)
		}

		if enrollment.UserID != callerID {
			logger.Warn("Caller does not own enrollment", "caller_id", callerID)
			return model.NewAppError("FORBIDDEN", "この受講登録を操作する権限がありません。", "", model.ErrForbidden)
		}

		switch enrollment.Status {
		case model.EnrollmentCompleted:
			// 冪等: 既に完了済みなら何もせず既存を返す (completedAt は変わらない)
			result = enrollment
			return nil
		case model.EnrollmentCancelled:
			return model.NewAppError("INVALID_TRANSITION", "キャンセル済みの受講は完了にできません。", "", model.ErrInvalidTransition)
		}

		now := time.Now()
		rows, err := s.enrollmentRepo.TransitionFromActive(ctx, tx, enrollmentID, model.EnrollmentCompleted, &now)
		if err != nil {
			logger.Error("Failed to transition enrollment", "error", err)
			return model.NewAppError("INTERNAL_SERVER_ERROR", "受講完了の処理に失敗しました。", "", err)
		}
		if rows == 0 {
			// 条件付き更新の負け側。再取得して既に completed ならそれを返す。
			current, ferr := s.enrollmentRepo.FindByID(ctx, tx, enrollmentID)
			if ferr != nil {
				logger.Error("Failed to re-fetch enrollment after lost race", "error", ferr)
				return model.NewAppError("INTERNAL_SERVER_ERROR", "受講完了の処理に失敗しました。", "", ferr)
			}
			if current.Status == model.EnrollmentCompleted {
				result = current
				return nil
			}
			return model.NewAppError("INVALID_TRANSITION", "この受講は完了にできない状態です。", "", model.ErrInvalidTransition)
		}

		enrollment.Status = model.EnrollmentCompleted
		enrollment.CompletedAt = &now
		result = enrollment
		logger.Info("Enrollment completed")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Cancel は受講をキャンセル状態に遷移させます (active からのみ)。
// 返金処理自体は対象外で、状態の記録のみ行う。
func (s *enrollmentService) Cancel(ctx context.Context, enrollmentID, callerID uuid.UUID) (*model.Enrollment, error) {
	logger := middleware.GetLogger(ctx).With("enrollment_id", enrollmentID)

	var result *model.Enrollment

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		enrollment, err := s.enrollmentRepo.FindByID(ctx, tx, enrollmentID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return model.NewAppError("NOT_FOUND", "受講登録が見つかりません。", "", model.ErrNotFound)
			}
			logger.Error("Failed to find enrollment", "error", err)
			return model.NewAppError("INTERNAL_SERVER_ERROR", "受講登録の確認中にエラーが発生しました。", "", err)
		}

		if enrollment.UserID != callerID {
			return model.NewAppError("FORBIDDEN", "この受講登録を操作する権限がありません。", "", model.ErrForbidden)
		}

		if enrollment.Status != model.EnrollmentActive {
			return model.NewAppError("INVALID_TRANSITION", "この受講はキャンセルできない状態です。", "", model.ErrInvalidTransition)
		}

		rows, err := s.enrollmentRepo.TransitionFromActive(ctx, tx, enrollmentID, model.EnrollmentCancelled, nil)
		if err != nil {
			logger.Error("Failed to cancel enrollment", "error", err)
			return model.NewAppError("INTERNAL_SERVER_ERROR", "受講キャンセルの処理に失敗しました。", "", err)
		}
		if rows == 0 {
			return model.NewAppError("INVALID_TRANSITION", "この受講はキャンセルできない状態です。", "", model.ErrInvalidTransition)
		}

		enrollment.Status = model.EnrollmentCancelled
		result = enrollment
		logger.Info("Enrollment cancelled")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// IsActivelyEnrolled は status = active の登録があるときだけ true を返します
func (s *enrollmentService) IsActivelyEnrolled(ctx context.Context, userID, courseID uuid.UUID) (bool, error) {
	_, err := s.enrollmentRepo.FindActiveByUserAndCourse(ctx, s.db, userID, courseID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return false, nil
		}
		return false, model.NewAppError("INTERNAL_SERVER_ERROR", "登録状況の確認中にエラーが発生しました。", "", err)
	}
	return true, nil
}

func (s *enrollmentService) List(ctx context.Context, userID uuid.UUID) ([]*model.Enrollment, error) {
	enrollments, err := s.enrollmentRepo.FindByUser(ctx, s.db, userID)
	if err != nil {
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "受講一覧の取得に失敗しました。", "", err)
	}
	return enrollments, nil
}

// Stats はダッシュボード用の受講数集計を返します
func (s *enrollmentService) Stats(ctx context.Context, userID uuid.UUID) (*model.EnrollmentStatsResponse, error) {
	enrollments, err := s.enrollmentRepo.FindByUser(ctx, s.db, userID)
	if err != nil {
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "受講状況の取得に失敗しました。", "", err)
	}

	stats := &model.EnrollmentStatsResponse{}
	for _, e := range enrollments {
		switch e.Status {
		case model.EnrollmentCompleted:
			stats.CompletedCourses++
		case model.EnrollmentActive:
			stats.InProgressCourses++
		}
	}
	stats.EnrolledCourses = len(enrollments)
	return stats, nil
}

func (s *enrollmentService) sendEnrollmentMail(ctx context.Context, userID uuid.UUID, courseTitle string) {
	logger := middleware.GetLogger(ctx)

	user, err := s.userRepo.FindByID(ctx, s.db, userID)
	if err != nil {
		logger.Warn("Could not resolve user for enrollment mail", "error", err)
		return
	}

	subject := "受講登録が完了しました"
	body := fmt.Sprintf("%s さん\n\n「%s」の受講登録が完了しました。学習を始めましょう。", user.Name, courseTitle)
	if err := s.mailer.Send(ctx, user.Email, subject, body); err != nil {
		logger.Warn("Failed to send enrollment mail", "error", err)
	}
}
