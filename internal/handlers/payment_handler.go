// internal/handlers/payment_handler.go
package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"go_course_platform/internal/middleware"
	"go_course_platform/internal/model"
	"go_course_platform/internal/service"
	"go_course_platform/internal/webutil"

	"github.com/go-playground/validator/v10"
)

// Webhookボディの上限 (1MB)。プロバイダの通知はこれを超えない。
const maxWebhookBodySize = 1 << 20

type PaymentHandler struct {
	service service.PaymentService
	logger  *slog.Logger
}

func NewPaymentHandler(s service.PaymentService, logger *slog.Logger) *PaymentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentHandler{
		service: s,
		logger:  logger,
	}
}

// PostOrder は決済プロバイダに注文を作成するハンドラ
func (h *PaymentHandler) PostOrder(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "PostOrder"))

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		logger.Warn("Unauthorized access attempt", slog.String("error", err.Error()))
		webutil.HandleError(w, logger, err)
		return
	}
	logger = logger.With(slog.String("user_id", userID.String()))

	var req model.CreateOrderRequest
	if err := webutil.DecodeJSONBody(r, &req); err != nil {
		logger.Warn("Failed to decode request body", slog.String("error", err.Error()))
		appErr := model.NewAppError("INVALID_REQUEST_BODY", "リクエストボディの形式が正しくありません。", "", model.ErrInvalidInput)
		webutil.HandleError(w, logger, appErr)
		return
	}

	if err := webutil.Validator.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			logger.Warn("Validation failed", slog.Any("errors", validationErrors.Error()))
			firstErr := validationErrors[0]
			translatedMsg := firstErr.Translate(webutil.Trans)
			appErr := model.NewAppError("VALIDATION_ERROR", translatedMsg, firstErr.Field(), model.ErrInvalidInput)
			webutil.HandleError(w, logger, appErr)
		} else {
			logger.Error("Unexpected error during validation", slog.Any("error", err))
			webutil.HandleError(w, logger, err)
		}
		return
	}

	order, err := h.service.CreateOrder(r.Context(), userID, &req)
	if err != nil {
		logger.Error("Error creating payment order in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	logger.Info("Payment order created successfully", slog.String("order_id", order.OrderID))
	webutil.RespondWithJSON(w, http.StatusCreated, order, logger)
}

// PostVerify は決済完了コールバックを検証して受講登録するハンドラ
func (h *PaymentHandler) PostVerify(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "PostVerify"))

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		logger.Warn("Unauthorized access attempt", slog.String("error", err.Error()))
		webutil.HandleError(w, logger, err)
		return
	}
	logger = logger.With(slog.String("user_id", userID.String()))

	var req model.VerifyPaymentRequest
	if err := webutil.DecodeJSONBody(r, &req); err != nil {
		logger.Warn("Failed to decode request body", slog.String("error", err.Error()))
		appErr := model.NewAppError("INVALID_REQUEST_BODY", "リクエストボディの形式が正しくありません。", "", model.ErrInvalidInput)
		webutil.HandleError(w, logger, appErr)
		return
	}

	if err := webutil.Validator.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			logger.Warn("Validation failed", slog.Any("errors", validationErrors.Error()))
			firstErr := validationErrors[0]
			translatedMsg := firstErr.Translate(webutil.Trans)
			appErr := model.NewAppError("VALIDATION_ERROR", translatedMsg, firstErr.Field(), model.ErrInvalidInput)
			webutil.HandleError(w, logger, appErr)
		} else {
			logger.Error("Unexpected error during validation", slog.Any("error", err))
			webutil.HandleError(w, logger, err)
		}
		return
	}

	result, err := h.service.VerifyAndEnroll(r.Context(), userID, &req)
	if err != nil {
		// 署名不一致は攻撃の兆候なのでWarnで記録される (サービス側)
		logger.Error("Error verifying payment in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	logger.Info("Payment verified and enrollment created",
		slog.String("enrollment_id", result.Enrollment.EnrollmentID.String()),
	)
	webutil.RespondWithJSON(w, http.StatusCreated, result, logger)
}

// PostWebhook は決済プロバイダからのWebhookを受けるハンドラ (認証なし)
// 署名は生のリクエストボディに対して検証するため、デコード前にボディを読み切る。
func (h *PaymentHandler) PostWebhook(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "PostWebhook"))

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		logger.Warn("Failed to read webhook body", slog.String("error", err.Error()))
		appErr := model.NewAppError("INVALID_REQUEST_BODY", "リクエストボディを読み取れません。", "", model.ErrInvalidInput)
		webutil.HandleError(w, logger, appErr)
		return
	}

	signature := r.Header.Get("X-Razorpay-Signature")

	if err := h.service.HandleWebhook(r.Context(), body, signature); err != nil {
		logger.Error("Error handling webhook in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	logger.Info("Webhook handled successfully")
	webutil.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
}
