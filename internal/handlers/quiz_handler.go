// internal/handlers/quiz_handler.go
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

type QuizHandler struct {
	service service.QuizService
	logger  *slog.Logger
}

func NewQuizHandler(s service.QuizService, logger *slog.Logger) *QuizHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuizHandler{
		service: s,
		logger:  logger,
	}
}

// GetChapterQuiz は章のクイズを出題用に取得するハンドラ (正解は含まれない)
func (h *QuizHandler) GetChapterQuiz(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "GetChapterQuiz"))

	chapterID, err := parseUUIDParam(r, "chapter_id")
	if err != nil {
		logger.Warn("Invalid chapter ID format in URL", slog.String("error", err.Error()))
		appErr := model.NewAppError("INVALID_URL_PARAM", "chapter_idの形式が正しくありません。", "chapter_id", model.ErrInvalidInput)
		webutil.HandleError(w, logger, appErr)
		return
	}
	logger = logger.With(slog.String("chapter_id", chapterID.String()))

	quiz, err := h.service.GetQuizForChapter(r.Context(), chapterID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			logger.Info("Quiz not found for chapter", slog.Any("error", err))
		} else {
			logger.Error("Error getting quiz in service", slog.Any("error", err))
		}
		webutil.HandleError(w, logger, err)
		return
	}

	// 設問はモデルのjsonタグで正解を落とした形で返す
	resp := struct {
		*model.Quiz
		Questions []model.QuizQuestion `json:"questions"`
	}{Quiz: quiz, Questions: quiz.Questions}

	webutil.RespondWithJSON(w, http.StatusOK, resp, logger)
}

// PostAttempt は回答を送信して採点するハンドラ
func (h *QuizHandler) PostAttempt(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "PostAttempt"))

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		logger.Warn("Unauthorized access attempt", slog.String("error", err.Error()))
		webutil.HandleError(w, logger, err)
		return
	}
	logger = logger.With(slog.String("user_id", userID.String()))

	quizID, err := parseUUIDParam(r, "quiz_id")
	if err != nil {
		logger.Warn("Invalid quiz ID format in URL", slog.String("error", err.Error()))
		appErr := model.NewAppError("INVALID_URL_PARAM", "quiz_idの形式が正しくありません。", "quiz_id", model.ErrInvalidInput)
		webutil.HandleError(w, logger, appErr)
		return
	}
	logger = logger.With(slog.String("quiz_id", quizID.String()))

	var req model.SubmitAttemptRequest
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

	result, err := h.service.SubmitAttempt(r.Context(), userID, quizID, &req)
	if err != nil {
		logger.Error("Error submitting attempt in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	logger.Info("Quiz attempt submitted successfully",
		slog.Int("score", result.Result.Score),
		slog.Bool("passed", result.Result.Passed),
	)
	webutil.RespondWithJSON(w, http.StatusCreated, result, logger)
}

// GetAttempts は自分の回答履歴を取得するハンドラ
func (h *QuizHandler) GetAttempts(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "GetAttempts"))

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		logger.Warn("Unauthorized access attempt", slog.String("error", err.Error()))
		webutil.HandleError(w, logger, err)
		return
	}

	quizID, err := parseUUIDParam(r, "quiz_id")
	if err != nil {
		logger.Warn("Invalid quiz ID format in URL", slog.String("error", err.Error()))
		appErr := model.NewAppError("INVALID_URL_PARAM", "quiz_idの形式が正しくありません。", "quiz_id", model.ErrInvalidInput)
		webutil.HandleError(w, logger, appErr)
		return
	}

	attempts, err := h.service.ListAttempts(r.Context(), userID, quizID)
	if err != nil {
		logger.Error("Error listing attempts in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	if attempts == nil {
		attempts = []*model.QuizAttempt{}
	}
	webutil.RespondWithJSON(w, http.StatusOK, attempts, logger)
}

// GetAttemptResults は設問ごとの採点詳細を取得するハンドラ (本人か管理者のみ)
func (h *QuizHandler) GetAttemptResults(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "GetAttemptResults"))

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		logger.Warn("Unauthorized access attempt", slog.String("error", err.Error()))
		webutil.HandleError(w, logger, err)
		return
	}
	role := middleware.GetUserRoleFromContext(r.Context())

	attemptID, err := parseUUIDParam(r, "attempt_id")
	if err != nil {
		logger.Warn("Invalid attempt ID format in URL", slog.String("error", err.Error()))
		appErr := model.NewAppError("INVALID_URL_PARAM", "attempt_idの形式が正しくありません。", "attempt_id", model.ErrInvalidInput)
		webutil.HandleError(w, logger, appErr)
		return
	}
	logger = logger.With(slog.String("attempt_id", attemptID.String()))

	results, err := h.service.GetResults(r.Context(), attemptID, userID, role)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			logger.Info("Attempt not found in service", slog.Any("error", err))
		} else {
			logger.Error("Error getting attempt results in service", slog.Any("error", err))
		}
		webutil.HandleError(w, logger, err)
		return
	}

	webutil.RespondWithJSON(w, http.StatusOK, results, logger)
}
