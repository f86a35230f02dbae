// internal/handlers/certificate_handler.go
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
)

type CertificateHandler struct {
	service service.CertificateService
	logger  *slog.Logger
}

func NewCertificateHandler(s service.CertificateService, logger *slog.Logger) *CertificateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CertificateHandler{
		service: s,
		logger:  logger,
	}
}

// PostCertificate は修了証明書を発行するハンドラ (冪等)
// 新規発行なら201、発行済みを返す場合は200。
func (h *CertificateHandler) PostCertificate(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "PostCertificate"))

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		logger.Warn("Unauthorized access attempt", slog.String("error", err.Error()))
		webutil.HandleError(w, logger, err)
		return
	}
	logger = logger.With(slog.String("user_id", userID.String()))

	courseID, err := parseUUIDParam(r, "course_id")
	if err != nil {
		logger.Warn("Invalid course ID format in URL", slog.String("error", err.Error()))
		appErr := model.NewAppError("INVALID_URL_PARAM", "course_idの形式が正しくありません。", "course_id", model.ErrInvalidInput)
		webutil.HandleError(w, logger, appErr)
		return
	}
	logger = logger.With(slog.String("course_id", courseID.String()))

	resp, err := h.service.Issue(r.Context(), userID, courseID)
	if err != nil {
		logger.Error("Error issuing certificate in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	status := http.StatusCreated
	if resp.AlreadyIssued {
		status = http.StatusOK
	}
	logger.Info("Certificate issue handled",
		slog.String("certificate_number", resp.Certificate.CertificateNumber),
		slog.Bool("already_issued", resp.AlreadyIssued),
	)
	webutil.RespondWithJSON(w, status, resp, logger)
}

// GetCertificates は自分の証明書一覧を取得するハンドラ
func (h *CertificateHandler) GetCertificates(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "GetCertificates"))

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		logger.Warn("Unauthorized access attempt", slog.String("error", err.Error()))
		webutil.HandleError(w, logger, err)
		return
	}

	certificates, err := h.service.List(r.Context(), userID)
	if err != nil {
		logger.Error("Error listing certificates in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	if certificates == nil {
		certificates = []*model.Certificate{}
	}
	webutil.RespondWithJSON(w, http.StatusOK, certificates, logger)
}

// GetCertificateByNumber は証明書番号で本人向けの詳細を取得するハンドラ
func (h *CertificateHandler) GetCertificateByNumber(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "GetCertificateByNumber"))

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		logger.Warn("Unauthorized access attempt", slog.String("error", err.Error()))
		webutil.HandleError(w, logger, err)
		return
	}
	userRole := middleware.GetUserRoleFromContext(r.Context())

	certificateNumber := chi.URLParam(r, "certificate_number")
	if certificateNumber == "" {
		appErr := model.NewAppError("INVALID_URL_PARAM", "証明書番号が指定されていません。", "certificate_number", model.ErrInvalidInput)
		webutil.HandleError(w, logger, appErr)
		return
	}

	certificate, err := h.service.GetByNumber(r.Context(), certificateNumber, userID, userRole)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			logger.Info("Certificate not found in service", slog.Any("error", err))
		} else {
			logger.Error("Error getting certificate in service", slog.Any("error", err))
		}
		webutil.HandleError(w, logger, err)
		return
	}

	webutil.RespondWithJSON(w, http.StatusOK, certificate, logger)
}

// GetCertificateData は外部レンダラ用の描画データを取得するハンドラ
func (h *CertificateHandler) GetCertificateData(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "GetCertificateData"))

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

	data, err := h.service.GetIssueData(r.Context(), userID, courseID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			logger.Info("Certificate not found in service", slog.Any("error", err))
		} else {
			logger.Error("Error getting certificate data in service", slog.Any("error", err))
		}
		webutil.HandleError(w, logger, err)
		return
	}

	webutil.RespondWithJSON(w, http.StatusOK, data, logger)
}

// VerifyCertificate は認証なしの公開検証ハンドラ
// 存在しない番号でも200で valid: false を返す (番号の総当たりに内部情報を与えない)
func (h *CertificateHandler) VerifyCertificate(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("handler", "VerifyCertificate"))

	certificateNumber := chi.URLParam(r, "certificate_number")
	if certificateNumber == "" {
		appErr := model.NewAppError("INVALID_URL_PARAM", "証明書番号が指定されていません。", "certificate_number", model.ErrInvalidInput)
		webutil.HandleError(w, logger, appErr)
		return
	}

	resp, err := h.service.Verify(r.Context(), certificateNumber)
	if err != nil {
		logger.Error("Error verifying certificate in service", slog.Any("error", err))
		webutil.HandleError(w, logger, err)
		return
	}

	logger.Info("Certificate verification handled", slog.Bool("valid", resp.Valid))
	webutil.RespondWithJSON(w, http.StatusOK, resp, logger)
}
