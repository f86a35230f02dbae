// internal/handlers/enrollment_handler.go
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"go_course_platform/internal/middleware"
	"go_course_platform/internal/model"
	"go_course_platform/internal/service"
	"go_course_platform/internal/webutil"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type EnrollmentHandler struct {
	service service.EnrollmentService
	logger  *slog.Logger
}

func NewEnrollmentHandler(s service.EnrollmentService, logger *slog.Logger) *EnrollmentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnrollmentHandler{
		service: s,
		logger:  logger,
	}
}

// EnrollRequest は無料コースの直接登録リクエスト
type EnrollRequest struct {
	CourseID uuid.UUID `json:"course_id" validate:"required"`
}

// PostEnrollment は無料コースへの受講登録ハンドラ (有料コースは決済フローを経由する)
func (h *EnrollmentHandler) PostEnrollment(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "PostEnrollment"))

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		logger.Warn("Unauthorized access attempt", slog.String("error", err.Error()))
		webutil.HandleError(w, logger, err)
		return
	}
	logger = logger.With(slog.String("user_id", userID.String()))

	var req EnrollRequest
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

	enrollment, err := h.service.Create(r.Context(), userID, req.CourseID, nil, 0)
	if err != nil {
		logger.Error("Error creating enrollment in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	logger.Info("Enrollment created successfully", slog.String("enrollment_id", enrollment.EnrollmentID.String()))
	webutil.RespondWithJSON(w, http.StatusCreated, enrollment, logger)
}

// GetEnrollments は自分の受講一覧を取得するハンドラ
func (h *EnrollmentHandler) GetEnrollments(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "GetEnrollments"))

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		logger.Warn("Unauthorized access attempt", slog.String("error", err.Error()))
		webutil.HandleError(w, logger, err)
		return
	}
	logger = logger.With(slog.String("user_id", userID.String()))

	enrollments, err := h.service.List(r.Context(), userID)
	if err != nil {
		logger.Error("Error listing enrollments in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	if enrollments == nil {
		enrollments = []*model.Enrollment{}
	}
	logger.Info("Enrollments listed successfully", slog.Int("count", len(enrollments)))
	webutil.RespondWithJSON(w, http.StatusOK, enrollments, logger)
}

// GetEnrollmentStats はダッシュボード用の受講集計を返すハンドラ
func (h *EnrollmentHandler) GetEnrollmentStats(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "GetEnrollmentStats"))

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		logger.Warn("Unauthorized access attempt", slog.String("error", err.Error()))
		webutil.HandleError(w, logger, err)
		return
	}

	stats, err := h.service.Stats(r.Context(), userID)
	if err != nil {
		logger.Error("Error getting enrollment stats in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	webutil.RespondWithJSON(w, http.StatusOK, stats, logger)
}

// CompleteEnrollment は受講を完了状態に遷移させるハンドラ (冪等)
func (h *EnrollmentHandler) CompleteEnrollment(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "CompleteEnrollment"))

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		logger.Warn("Unauthorized access attempt", slog.String("error", err.Error()))
		webutil.HandleError(w, logger, err)
		return
	}
	logger = logger.With(slog.String("user_id", userID.String()))

	enrollmentID, err := parseUUIDParam(r, "enrollment_id")
	if err != nil {
		logger.Warn("Invalid enrollment ID format in URL", slog.String("error", err.Error()))
		appErr := model.NewAppError("INVALID_URL_PARAM", "enrollment_idの形式が正しくありません。", "enrollment_id", model.ErrInvalidInput)
		webutil.HandleError(w, logger, appErr)
		return
	}
	logger = logger.With(slog.String("enrollment_id", enrollmentID.String()))

	enrollment, err := h.service.Complete(r.Context(), enrollmentID, userID)
	if err != nil {
		logger.Error("Error completing enrollment in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	logger.Info("Enrollment completed successfully")
	webutil.RespondWithJSON(w, http.StatusOK, enrollment, logger)
}

// CancelEnrollment は受講をキャンセルするハンドラ
func (h *EnrollmentHandler) CancelEnrollment(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "CancelEnrollment"))

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		logger.Warn("Unauthorized access attempt", slog.String("error", err.Error()))
		webutil.HandleError(w, logger, err)
		return
	}
	logger = logger.With(slog.String("user_id", userID.String()))

	enrollmentID, err := parseUUIDParam(r, "enrollment_id")
	if err != nil {
		logger.Warn("Invalid enrollment ID format in URL", slog.String("error", err.Error()))
		appErr := model.NewAppError("INVALID_URL_PARAM", "enrollment_idの形式が正しくありません。", "enrollment_id", model.ErrInvalidInput)
		webutil.HandleError(w, logger, appErr)
		return
	}
	logger = logger.With(slog.String("enrollment_id", enrollmentID.String()))

	enrollment, err := h.service.Cancel(r.Context(), enrollmentID, userID)
	if err != nil {
		logger.Error("Error cancelling enrollment in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	logger.Info("Enrollment cancelled successfully")
	webutil.RespondWithJSON(w, http.StatusOK, enrollment, logger)
}

// parseUUIDParam はURLパラメータをUUIDとして取り出す共通ヘルパー
func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}
