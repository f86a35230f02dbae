package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go_course_platform/internal/config"
	"go_course_platform/internal/middleware"
	"go_course_platform/internal/model"
	"go_course_platform/internal/payment"
	"go_course_platform/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentService は決済と受講登録をつなぐオーケストレータです。
// 署名検証 (payment.Verifier) を通らない限り有料の受講登録は作られない。
type PaymentService interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, req *model.CreateOrderRequest) (*model.CreateOrderResponse, error)
	VerifyAndEnroll(ctx context.Context, userID uuid.UUID, req *model.VerifyPaymentRequest) (*model.VerifyPaymentResponse, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) error
}

type paymentService struct {
	db             *gorm.DB
	courseRepo     repository.CourseRepository
	enrollmentRepo repository.EnrollmentRepository
	enrollmentSvc  EnrollmentService
	client         payment.Client
	verifier       *payment.Verifier
	cfg            *config.Config
}

func NewPaymentService(db *gorm.DB, courseRepo repository.CourseRepository, enrollmentRepo repository.EnrollmentRepository, enrollmentSvc EnrollmentService, client payment.Client, verifier *payment.Verifier, cfg *config.Config) PaymentService {
	return &paymentService{
		db:             db,
		courseRepo:     courseRepo,
		enrollmentRepo: enrollmentRepo,
		enrollmentSvc:  enrollmentSvc,
		client:         client,
		verifier:       verifier,
		cfg:            cfg,
	}
}

// CreateOrder は決済プロバイダに注文を作成します。
// 金額はコース価格から最小通貨単位 (×100) に換算したサーバ側の値を使い、
// クライアントから金額は受け取らない。
func (s *paymentService) CreateOrder(ctx context.Context, userID uuid.UUID, req *model.CreateOrderRequest) (*model.CreateOrderResponse, error) {
	logger := middleware.GetLogger(ctx).With("user_id", userID, "course_id", req.CourseID)

	course, err := s.courseRepo.FindByID(ctx, s.db, req.CourseID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewAppError("NOT_FOUND", "コースが見つかりません。", "course_id", model.ErrNotFound)
		}
		logger.Error("Failed to find course for order", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "コースの確認中にエラーが発生しました。", "", err)
	}
	if !course.Published {
		return nil, model.NewAppError("NOT_FOUND", "このコースは現在購入できません。", "course_id", model.ErrNotFound)
	}
	if course.Price <= 0 {
		return nil, model.NewAppError("INVALID_INPUT", "無料コースに決済は不要です。", "course_id", model.ErrInvalidInput)
	}

	// 購入前に既存登録を確認し、無駄な注文を作らない
	_, err = s.enrollmentRepo.FindByUserAndCourse(ctx, s.db, userID, req.CourseID)
	if err == nil {
		return nil, model.NewAppError("DUPLICATE_ENROLLMENT", "このコースには既に登録されています。", "", model.ErrConflict)
	}
	if !errors.Is(err, model.ErrNotFound) {
		logger.Error("Failed to check enrollment before order", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "登録状況の確認中にエラーが発生しました。", "", err)
	}

	order, err := s.client.CreateOrder(ctx, &payment.CreateOrderParams{
		Amount:   int64(course.Price * 100), // 最小通貨単位に換算
		Currency: course.Currency,
		Receipt:  fmt.Sprintf("course_%s", req.CourseID),
		Notes: map[string]string{
			"course_id": req.CourseID.String(),
			"user_id":   userID.String(),
		},
	})
	if err != nil {
		logger.Error("Failed to create payment order", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "決済注文の作成に失敗しました。", "", err)
	}

	logger.Info("Payment order created", "order_id", order.ID, "amount", order.Amount)

	return &model.CreateOrderResponse{
		OrderID:  order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
		KeyID:    s.cfg.Payment.KeyID,
	}, nil
}

// VerifyAndEnroll は決済完了コールバックを検証し、受講登録を作成します。
// 順序は固定: (1) 署名検証 (2) プロバイダ照会で状態確認 (3) 登録作成。
// 署名不一致は金額や決済状態を見る前に即 INVALID_SIGNATURE で弾く。
func (s *paymentService) VerifyAndEnroll(ctx context.Context, userID uuid.UUID, req *model.VerifyPaymentRequest) (*model.VerifyPaymentResponse, error) {
	logger := middleware.GetLogger(ctx).With("user_id", userID, "course_id", req.CourseID)

	if !s.verifier.VerifySignature(req.OrderID, req.PaymentID, req.Signature) {
		// 署名そのものはログに残さない
		logger.Warn("Payment signature verification failed", "order_id", req.OrderID)
		return nil, model.NewAppError("INVALID_SIGNATURE", "決済署名の検証に失敗しました。", "signature", model.ErrInvalidSignature)
	}

	paymentInfo, err := s.client.FetchPayment(ctx, req.PaymentID)
	if err != nil {
		logger.Error("Failed to fetch payment from provider", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "決済情報の確認に失敗しました。", "", err)
	}

	if paymentInfo.Status != payment.StatusCaptured && paymentInfo.Status != payment.StatusAuthorized {
		logger.Warn("Payment not in payable state", "payment_id", req.PaymentID, "status", paymentInfo.Status)
		return nil, model.NewAppError("INVALID_INPUT", "決済が完了していません。", "payment_id", model.ErrInvalidInput)
	}
	if paymentInfo.OrderID != req.OrderID {
		logger.Warn("Payment order mismatch", "payment_id", req.PaymentID)
		return nil, model.NewAppError("INVALID_SIGNATURE", "決済情報が一致しません。", "order_id", model.ErrInvalidSignature)
	}

	amountPaid := float64(paymentInfo.Amount) / 100 // 最小通貨単位から通常単位へ
	paymentID := req.PaymentID

	enrollment, err := s.enrollmentSvc.Create(ctx, userID, req.CourseID, &paymentID, amountPaid)
	if err != nil {
		return nil, err
	}

	logger.Info("Payment verified and enrollment created",
		"enrollment_id", enrollment.EnrollmentID,
		"payment_id", paymentID,
	)

	return &model.VerifyPaymentResponse{
		Enrollment: enrollment,
		Payment: &model.PaymentSummary{
			PaymentID: paymentID,
			Amount:    amountPaid,
			Status:    paymentInfo.Status,
		},
	}, nil
}

// HandleWebhook はプロバイダからの非同期通知を処理します。
// 生のボディに対する署名検証が通らなければ何も処理しない。
// Webhookは再送されるため、重複登録は成功扱いで握りつぶす。
func (s *paymentService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	logger := middleware.GetLogger(ctx)

	if !s.verifier.VerifyWebhookSignature(body, signature) {
		logger.Warn("Webhook signature verification failed")
		return model.NewAppError("INVALID_SIGNATURE", "Webhook署名の検証に失敗しました。", "", model.ErrInvalidSignature)
	}

	var event model.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		logger.Warn("Failed to decode webhook payload", "error", err)
		return model.NewAppError("INVALID_INPUT", "Webhookペイロードを解釈できません。", "", model.ErrInvalidInput)
	}

	logger = logger.With("event", event.Event)

	switch event.Event {
	case "payment.captured":
		return s.handlePaymentCaptured(ctx, &event)
	case "order.paid":
		logger.Info("Order paid", "order_id", event.Payload.Order.Entity.ID)
		return nil
	case "payment.failed":
		entity := event.Payload.Payment.Entity
		logger.Warn("Payment failed",
			"payment_id", entity.ID,
			"order_id", entity.OrderID,
			"error_code", entity.ErrorCode,
			"error_description", entity.ErrorDescription,
		)
		return nil
	default:
		// 未知のイベントはACKして再送を止める
		logger.Info("Ignoring unhandled webhook event")
		return nil
	}
}

func (s *paymentService) handlePaymentCaptured(ctx context.Context, event *model.WebhookEvent) error {
	log := middleware.GetLogger(ctx).With("event", event.Event)
	entity := event.Payload.Payment.Entity

	userID, err := uuid.Parse(entity.Notes["user_id"])
	if err != nil {
		log.Warn("Webhook payment has no valid user_id note", "payment_id", entity.ID)
		return nil
	}
	courseID, err := uuid.Parse(entity.Notes["course_id"])
	if err != nil {
		log.Warn("Webhook payment has no valid course_id note", "payment_id", entity.ID)
		return nil
	}

	paymentID := entity.ID
	amountPaid := float64(entity.Amount) / 100

	_, err = s.enrollmentSvc.Create(ctx, userID, courseID, &paymentID, amountPaid)
	if err != nil {
		// 同期フロー or 再送済みWebhookが先に登録済み。冪等に成功扱い。
		if errors.Is(err, model.ErrConflict) {
			log.Info("Enrollment already exists for webhook payment", "payment_id", paymentID)
			return nil
		}
		log.Error("Failed to create enrollment from webhook", "error", err, "payment_id", paymentID)
		return err
	}

	log.Info("Enrollment created from webhook", "payment_id", paymentID, "user_id", userID, "course_id", courseID)
	return nil
}
