// internal/handlers/progress_handler.go
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"go_course_platform/internal/middleware"
	"go_course_platform/internal/model"
	"go_course_platform/internal/service"
	"go_course_platform/internal/webutil"

	"github.com/go-playground/validator/v10"
)

type ProgressHandler struct {
	service service.ProgressService
	logger  *slog.Logger
}

func NewProgressHandler(s service.ProgressService, logger *slog.Logger) *ProgressHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressHandler{
		service: s,
		logger:  logger,
	}
}

// PutProgress は動画の視聴進捗をupsertするハンドラ
func (h *ProgressHandler) PutProgress(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "PutProgress"))

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		logger.Warn("Unauthorized access attempt", slog.String("error", err.Error()))
		webutil.HandleError(w, logger, err)
		return
	}
	logger = logger.With(slog.String("user_id", userID.String()))

	videoID, err := parseUUIDParam(r, "video_id")
	if err != nil {
		logger.Warn("Invalid video ID format in URL", slog.String("error", err.Error()))
		appErr := model.NewAppError("INVALID_URL_PARAM", "video_idの形式が正しくありません。", "video_id", model.ErrInvalidInput)
		webutil.HandleError(w, logger, appErr)
		return
	}
	logger = logger.With(slog.String("video_id", videoID.String()))

	var req model.UpdateProgressRequest
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

	if req.Completed == nil && req.WatchTime == nil {
		logger.Warn("PutProgress called with no fields provided for update")
		appErr := model.NewAppError("VALIDATION_ERROR", "更新するフィールドが指定されていません。", "", model.ErrInvalidInput)
		webutil.HandleError(w, logger, appErr)
		return
	}

	progress, err := h.service.RecordProgress(r.Context(), userID, videoID, &req)
	if err != nil {
		logger.Error("Error recording progress in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	logger.Info("Progress recorded successfully", slog.Bool("completed", progress.Completed))
	webutil.RespondWithJSON(w, http.StatusOK, progress, logger)
}

// GetVideoProgress は動画単位の進捗を取得するハンドラ (未記録でもゼロ値を返す)
func (h *ProgressHandler) GetVideoProgress(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "GetVideoProgress"))

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		logger.Warn("Unauthorized access attempt", slog.String("error", err.Error()))
		webutil.HandleError(w, logger, err)
		return
	}

	videoID, err := parseUUIDParam(r, "video_id")
	if err != nil {
		logger.Warn("Invalid video ID format in URL", slog.String("error", err.Error()))
		appErr := model.NewAppError("INVALID_URL_PARAM", "video_idの形式が正しくありません。", "video_id", model.ErrInvalidInput)
		webutil.HandleError(w, logger, appErr)
		return
	}

	progress, err := h.service.GetVideoProgress(r.Context(), userID, videoID)
	if err != nil {
		logger.Error("Error getting video progress in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	webutil.RespondWithJSON(w, http.StatusOK, progress, logger)
}

// GetCourseProgress はコースの完了率を取得するハンドラ
func (h *ProgressHandler) GetCourseProgress(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "GetCourseProgress"))

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		logger.Warn("Unauthorized access attempt", slog.String("error", err.Error()))
		webutil.HandleError(w, logger, err)
		return
	}

	courseID, err := parseUUIDParam(r, "course_id")
	if err != nil {
		logger.Warn("Invalid course ID format in URL", slog.String("error", err.Error()))
		appErr := model.NewAppError("INVALID_URL_PARAM", "course_idの形式が正しくありません。", "course_id", model.ErrInvalidInput)
		webutil.HandleError(w, logger, appErr)
		return
	}
	logger = logger.With(slog.String("course_id", courseID.String()))

	progress, err := h.service.GetCourseProgress(r.Context(), userID, courseID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			logger.Info("Course not found in service", slog.Any("error", err))
		} else {
			logger.Error("Error getting course progress in service", slog.Any("error", err))
		}
		webutil.HandleError(w, logger, err)
		return
	}

	webutil.RespondWithJSON(w, http.StatusOK, progress, logger)
}

// GetRecentProgress は最近視聴した動画の進捗一覧を返すハンドラ
func (h *ProgressHandler) GetRecentProgress(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "GetRecentProgress"))

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		logger.Warn("Unauthorized access attempt", slog.String("error", err.Error()))
		webutil.HandleError(w, logger, err)
		return
	}

	progresses, err := h.service.ListRecent(r.Context(), userID)
	if err != nil {
		logger.Error("Error listing recent progress in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	if progresses == nil {
		progresses = []*model.Progress{}
	}
	webutil.RespondWithJSON(w, http.StatusOK, progresses, logger)
}
