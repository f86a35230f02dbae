// internal/handlers/progress_handler_test.go
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"go_course_platform/internal/handlers"
	"go_course_platform/internal/model"
	"go_course_platform/internal/service/mocks"
)

// newAuthedRequest はテスト用のリクエストを生成します。
// userID が非nilならJWTミドルウェア通過後と同じ形でコンテキストに詰める。
func newAuthedRequest(t *testing.T, method, target string, body interface{}, userID *uuid.UUID) *http.Request {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
		// ボディなし
	case string:
		// 壊れたJSONをそのまま送るケース用
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != nil {
		req = req.WithContext(context.WithValue(req.Context(), model.UserIDKey, *userID))
	}
	return req
}

func TestProgressHandler_PutProgress(t *testing.T) {
	// --- セットアップ ---
	userID := uuid.New()
	videoID := uuid.New()
	courseID := uuid.New()

	mockProgressService := mocks.NewProgressService(t)
	progressHandler := handlers.NewProgressHandler(mockProgressService, nil)
	router := chi.NewRouter()
	router.Put("/api/v1/videos/{video_id}/progress", progressHandler.PutProgress)
	// ------------------

	completedTrue := true
	watchTime := 120
	negativeWatchTime := -10

	validReq := model.UpdateProgressRequest{
		Completed: &completedTrue,
		WatchTime: &watchTime,
	}
	savedProgress := &model.Progress{
		ProgressID:    uuid.New(),
		UserID:        userID,
		VideoID:       videoID,
		CourseID:      courseID,
		Completed:     true,
		WatchTime:     watchTime,
		LastWatchedAt: time.Now(),
	}

	tests := []struct {
		name           string
		userID         *uuid.UUID
		target         string
		body           interface{}
		setupMock      func()
		expectedStatus int
		expectedCode   string // エラー時のレスポンスコード
	}{
		{
			name:   "正常系: 完了フラグと視聴時間を記録できる",
			userID: &userID,
			target: "/api/v1/videos/" + videoID.String() + "/progress",
			body:   validReq,
			setupMock: func() {
				mockProgressService.On("RecordProgress", mock.AnythingOfType("*context.valueCtx"), userID, videoID, &validReq).
					Return(savedProgress, nil).Once()
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "異常系: 未認証リクエストは401",
			userID:         nil,
			target:         "/api/v1/videos/" + videoID.String() + "/progress",
			body:           validReq,
			setupMock:      func() { /* Serviceは呼ばれない */ },
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "UNAUTHORIZED",
		},
		{
			name:           "異常系: video_idがUUID形式でない場合は400",
			userID:         &userID,
			target:         "/api/v1/videos/not-a-uuid/progress",
			body:           validReq,
			setupMock:      func() { /* Serviceは呼ばれない */ },
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_URL_PARAM",
		},
		{
			name:           "異常系: 壊れたJSONボディは400",
			userID:         &userID,
			target:         "/api/v1/videos/" + videoID.String() + "/progress",
			body:           `{"completed": tru`,
			setupMock:      func() { /* Serviceは呼ばれない */ },
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_REQUEST_BODY",
		},
		{
			name:           "異常系: 未知のフィールドを含むボディは400",
			userID:         &userID,
			target:         "/api/v1/videos/" + videoID.String() + "/progress",
			body:           `{"completed": true, "score": 100}`,
			setupMock:      func() { /* Serviceは呼ばれない */ },
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_REQUEST_BODY",
		},
		{
			name:           "異常系: 負のwatch_timeはバリデーションエラー",
			userID:         &userID,
			target:         "/api/v1/videos/" + videoID.String() + "/progress",
			body:           model.UpdateProgressRequest{WatchTime: &negativeWatchTime},
			setupMock:      func() { /* Serviceは呼ばれない */ },
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_ERROR",
		},
		{
			name:           "異常系: 更新フィールドが1つもない場合は400",
			userID:         &userID,
			target:         "/api/v1/videos/" + videoID.String() + "/progress",
			body:           model.UpdateProgressRequest{},
			setupMock:      func() { /* Serviceは呼ばれない */ },
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_ERROR",
		},
		{
			name:   "異常系: 未登録コースはServiceのForbiddenをそのまま403で返す",
			userID: &userID,
			target: "/api/v1/videos/" + videoID.String() + "/progress",
			body:   validReq,
			setupMock: func() {
				mockProgressService.On("RecordProgress", mock.AnythingOfType("*context.valueCtx"), userID, videoID, &validReq).
					Return(nil, model.NewAppError("FORBIDDEN", "このコースに登録されていないため、進捗を記録できません。", "", model.ErrForbidden)).Once()
			},
			expectedStatus: http.StatusForbidden,
			expectedCode:   "FORBIDDEN",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			req := newAuthedRequest(t, http.MethodPut, tc.target, tc.body, tc.userID)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedStatus, rr.Code)

			if tc.expectedStatus == http.StatusOK {
				var resp model.Progress
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
				assert.Equal(t, savedProgress.ProgressID, resp.ProgressID)
				assert.Equal(t, videoID, resp.VideoID)
				assert.True(t, resp.Completed)
				assert.Equal(t, watchTime, resp.WatchTime)
			} else {
				var errResp model.APIErrorResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errResp))
				assert.Equal(t, tc.expectedCode, errResp.Error.Code)
				assert.NotEmpty(t, errResp.Error.Message)
			}

			mockProgressService.AssertExpectations(t)
		})
	}
}

func TestProgressHandler_GetCourseProgress(t *testing.T) {
	// --- セットアップ ---
	userID := uuid.New()
	courseID := uuid.New()

	mockProgressService := mocks.NewProgressService(t)
	progressHandler := handlers.NewProgressHandler(mockProgressService, nil)
	router := chi.NewRouter()
	router.Get("/api/v1/courses/{course_id}/progress", progressHandler.GetCourseProgress)
	// ------------------

	tests := []struct {
		name           string
		userID         *uuid.UUID
		target         string
		setupMock      func()
		expectedStatus int
		expectedBody   *model.CourseProgressResponse
	}{
		{
			name:   "正常系: コースの完了率を取得できる",
			userID: &userID,
			target: "/api/v1/courses/" + courseID.String() + "/progress",
			setupMock: func() {
				mockProgressService.On("GetCourseProgress", mock.AnythingOfType("*context.valueCtx"), userID, courseID).
					Return(&model.CourseProgressResponse{TotalVideos: 8, CompletedVideos: 3, Percentage: 38}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   &model.CourseProgressResponse{TotalVideos: 8, CompletedVideos: 3, Percentage: 38},
		},
		{
			name:   "異常系: 存在しないコースは404",
			userID: &userID,
			target: "/api/v1/courses/" + courseID.String() + "/progress",
			setupMock: func() {
				mockProgressService.On("GetCourseProgress", mock.AnythingOfType("*context.valueCtx"), userID, courseID).
					Return(nil, model.NewAppError("NOT_FOUND", "コースが見つかりません。", "course_id", model.ErrNotFound)).Once()
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "異常系: 未認証リクエストは401",
			userID:         nil,
			target:         "/api/v1/courses/" + courseID.String() + "/progress",
			setupMock:      func() { /* Serviceは呼ばれない */ },
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			req := newAuthedRequest(t, http.MethodGet, tc.target, nil, tc.userID)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedStatus, rr.Code)

			if tc.expectedBody != nil {
				var resp model.CourseProgressResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
				assert.Equal(t, *tc.expectedBody, resp)
			} else {
				var errResp model.APIErrorResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errResp))
				assert.NotEmpty(t, errResp.Error.Message)
			}

			mockProgressService.AssertExpectations(t)
		})
	}
}
