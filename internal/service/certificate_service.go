package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go_course_platform/internal/middleware"
	"go_course_platform/internal/model"
	"go_course_platform/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 証明書番号生成のリトライ上限。ランダム部が4バイトあるので実際はまず衝突しない。
const certificateNumberMaxAttempts = 5

// CertificateService は修了証明書の発行・照会・公開検証を扱います
type CertificateService interface {
	Issue(ctx context.Context, userID, courseID uuid.UUID) (*model.IssueCertificateResponse, error)
	List(ctx context.Context, userID uuid.UUID) ([]*model.Certificate, error)
	GetByNumber(ctx context.Context, certificateNumber string, callerID uuid.UUID, callerRole string) (*model.Certificate, error)
	GetIssueData(ctx context.Context, userID, courseID uuid.UUID) (*model.CertificateIssueData, error)
	Verify(ctx context.Context, certificateNumber string) (*model.VerifyCertificateResponse, error)
}

type certificateService struct {
	db              *gorm.DB
	certificateRepo repository.CertificateRepository
	enrollmentRepo  repository.EnrollmentRepository
	courseRepo      repository.CourseRepository
	userRepo        repository.UserRepository
	mailer          Mailer
}

func NewCertificateService(db *gorm.DB, certificateRepo repository.CertificateRepository, enrollmentRepo repository.EnrollmentRepository, courseRepo repository.CourseRepository, userRepo repository.UserRepository, mailer Mailer) CertificateService {
	return &certificateService{
		db:              db,
		certificateRepo: certificateRepo,
		enrollmentRepo:  enrollmentRepo,
		courseRepo:      courseRepo,
		userRepo:        userRepo,
		mailer:          mailer,
	}
}

// Issue は修了済みコースの証明書を発行します。冪等:
// 既に発行済みなら AlreadyIssued = true で既存の証明書を返す。
// 受講が completed でなければ COURSE_NOT_COMPLETED。
func (s *certificateService) Issue(ctx context.Context, userID, courseID uuid.UUID) (*model.IssueCertificateResponse, error) {
	logger := middleware.GetLogger(ctx).With("user_id", userID, "course_id", courseID)

	var resp *model.IssueCertificateResponse
	var courseTitle string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 先に既存チェック。発行済みならエラーではなく既存を返す。
		existing, err := s.certificateRepo.FindByUserAndCourse(ctx, tx, userID, courseID)
		if err == nil {
			resp = &model.IssueCertificateResponse{Certificate: existing, AlreadyIssued: true}
			return nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			logger.Error("Failed to check existing certificate", "error", err)
			return model.NewAppError("INTERNAL_SERVER_ERROR", "証明書の確認中にエラーが発生しました。", "", err)
		}

		enrollment, err := s.enrollmentRepo.FindCompletedByUserAndCourse(ctx, tx, userID, courseID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return model.NewAppError("COURSE_NOT_COMPLETED", "コースを修了していないため、証明書を発行できません。", "", model.ErrCourseNotCompleted)
			}
			logger.Error("Failed to check completed enrollment", "error", err)
			return model.NewAppError("INTERNAL_SERVER_ERROR", "受講状況の確認中にエラーが発生しました。", "", err)
		}

		course, err := s.courseRepo.FindByID(ctx, tx, courseID)
		if err != nil {
			logger.Error("Failed to find course for certificate", "error", err)
			return model.NewAppError("INTERNAL_SERVER_ERROR", "コースの取得に失敗しました。", "", err)
		}
		courseTitle = course.Title

		number, err := s.generateCertificateNumber(ctx, tx)
		if err != nil {
			logger.Error("Failed to generate certificate number", "error", err)
			return model.NewAppError("INTERNAL_SERVER_ERROR", "証明書番号の生成に失敗しました。", "", err)
		}

		certificate := &model.Certificate{
			CertificateID:     uuid.New(),
			UserID:            userID,
			CourseID:          courseID,
			EnrollmentID:      enrollment.EnrollmentID,
			CertificateNumber: number,
			IssuedAt:          time.Now(),
		}
		if err := s.certificateRepo.Create(ctx, tx, certificate); err != nil {
			if errors.Is(err, model.ErrConflict) {
				// 同時発行の負け側。勝った側の証明書を返す。
				winner, ferr := s.certificateRepo.FindByUserAndCourse(ctx, tx, userID, courseID)
				if ferr != nil {
					logger.Error("Failed to fetch certificate after lost race", "error", ferr)
					return model.NewAppError("INTERNAL_SERVER_ERROR", "証明書の発行に失敗しました。", "", ferr)
				}
				resp = &model.IssueCertificateResponse{Certificate: winner, AlreadyIssued: true}
				return nil
			}
			logger.Error("Failed to create certificate", "error", err)
			return model.NewAppError("INTERNAL_SERVER_ERROR", "証明書の発行に失敗しました。", "", err)
		}

		resp = &model.IssueCertificateResponse{Certificate: certificate, AlreadyIssued: false}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !resp.AlreadyIssued {
		logger.Info("Certificate issued",
			"certificate_id", resp.Certificate.CertificateID,
			"certificate_number", resp.Certificate.CertificateNumber,
		)
		s.sendCertificateMail(ctx, userID, courseTitle, resp.Certificate.CertificateNumber)
	}

	return resp, nil
}

// generateCertificateNumber は "CERT-<発行時刻(36進)>-<乱数8桁hex>" を生成します。
// unique制約が最終防衛線だが、事前チェックで衝突時のトランザクション失敗を避ける。
func (s *certificateService) generateCertificateNumber(ctx context.Context, tx *gorm.DB) (string, error) {
	for i := 0; i < certificateNumberMaxAttempts; i++ {
		buf := make([]byte, 4)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("certificateService.generateCertificateNumber: %w", err)
		}
		number := fmt.Sprintf("CERT-%s-%s",
			strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36)),
			strings.ToUpper(hex.EncodeToString(buf)),
		)

		exists, err := s.certificateRepo.NumberExists(ctx, tx, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
	}
	return "", errors.New("certificateService.generateCertificateNumber: exhausted attempts")
}

// List は本人の証明書一覧を発行日の降順で返します
func (s *certificateService) List(ctx context.Context, userID uuid.UUID) ([]*model.Certificate, error) {
	certificates, err := s.certificateRepo.FindByUser(ctx, s.db, userID)
	if err != nil {
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "証明書一覧の取得に失敗しました。", "", err)
	}
	return certificates, nil
}

// GetByNumber は証明書番号で本人 (または管理者) 向けの詳細を返します。
// 第三者向けの照会は Verify を使うこと。
func (s *certificateService) GetByNumber(ctx context.Context, certificateNumber string, callerID uuid.UUID, callerRole string) (*model.Certificate, error) {
	logger := middleware.GetLogger(ctx)

	certificate, err := s.certificateRepo.FindByNumber(ctx, s.db, certificateNumber)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewAppError("NOT_FOUND", "証明書が見つかりません。", "certificate_number", model.ErrNotFound)
		}
		logger.Error("Failed to find certificate by number", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "証明書の取得に失敗しました。", "", err)
	}

	if certificate.UserID != callerID && callerRole != model.RoleAdmin {
		logger.Warn("Caller does not own certificate", "caller_id", callerID)
		return nil, model.NewAppError("FORBIDDEN", "この証明書を閲覧する権限がありません。", "", model.ErrForbidden)
	}

	return certificate, nil
}

// GetIssueData は外部レンダラ (PDF生成など) に渡す描画用データを返します
func (s *certificateService) GetIssueData(ctx context.Context, userID, courseID uuid.UUID) (*model.CertificateIssueData, error) {
	logger := middleware.GetLogger(ctx).With("user_id", userID, "course_id", courseID)

	certificate, err := s.certificateRepo.FindByUserAndCourse(ctx, s.db, userID, courseID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewAppError("NOT_FOUND", "証明書が見つかりません。", "", model.ErrNotFound)
		}
		logger.Error("Failed to find certificate", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "証明書の取得に失敗しました。", "", err)
	}

	user, err := s.userRepo.FindByID(ctx, s.db, userID)
	if err != nil {
		logger.Error("Failed to find user for certificate data", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "証明書データの取得に失敗しました。", "", err)
	}

	course, err := s.courseRepo.FindByIDWithInstructor(ctx, s.db, courseID)
	if err != nil {
		logger.Error("Failed to find course for certificate data", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "証明書データの取得に失敗しました。", "", err)
	}

	data := &model.CertificateIssueData{
		HolderName:        user.Name,
		CourseName:        course.Title,
		CertificateNumber: certificate.CertificateNumber,
		IssuedAt:          certificate.IssuedAt,
	}
	if course.Instructor != nil {
		data.InstructorName = course.Instructor.Name
	}
	return data, nil
}

// Verify は認証なしの公開検証です。
// 存在しない番号でもエラーにせず Valid = false を返し、内部IDは一切出さない。
func (s *certificateService) Verify(ctx context.Context, certificateNumber string) (*model.VerifyCertificateResponse, error) {
	logger := middleware.GetLogger(ctx)

	certificate, err := s.certificateRepo.FindByNumber(ctx, s.db, certificateNumber)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return &model.VerifyCertificateResponse{Valid: false}, nil
		}
		logger.Error("Failed to verify certificate", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "証明書の検証に失敗しました。", "", err)
	}

	resp := &model.VerifyCertificateResponse{
		Valid:    true,
		IssuedAt: &certificate.IssuedAt,
	}
	if certificate.User != nil {
		resp.HolderName = certificate.User.Name
	}
	if certificate.Course != nil {
		resp.CourseName = certificate.Course.Title
	}
	return resp, nil
}

func (s *certificateService) sendCertificateMail(ctx context.Context, userID uuid.UUID, courseTitle, certificateNumber string) {
	logger := middleware.GetLogger(ctx)

	user, err := s.userRepo.FindByID(ctx, s.db, userID)
	if err != nil {
		logger.Warn("Could not resolve user for certificate mail", "error", err)
		return
	}

	subject := "修了証明書が発行されました"
	body := fmt.Sprintf("%s さん\n\n「%s」の修了証明書が発行されました。\n証明書番号: %s", user.Name, courseTitle, certificateNumber)
	if err := s.mailer.Send(ctx, user.Email, subject, body); err != nil {
		logger.Warn("Failed to send certificate mail", "error", err)
	}
}
