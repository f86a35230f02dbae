// internal/service/progress_service_test.go
package service

import (
	"context"
	"testing"
	"time"

	"go_course_platform/internal/config"
	"go_course_platform/internal/model"
	"go_course_platform/internal/repository/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// --- テストヘルパー関数 ---
func setupTestDBProgress() *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic("failed to connect database for testing: " + err.Error())
	}
	return db
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

type progressTestMocks struct {
	progressRepo *mocks.ProgressRepository
	courseRepo   *mocks.CourseRepository
	enrollRepo   *mocks.EnrollmentRepository
	userRepo     *mocks.UserRepository
}

func newProgressServiceForTest(db *gorm.DB) (ProgressService, *progressTestMocks) {
	m := &progressTestMocks{
		progressRepo: new(mocks.ProgressRepository),
		courseRepo:   new(mocks.CourseRepository),
		enrollRepo:   new(mocks.EnrollmentRepository),
		userRepo:     new(mocks.UserRepository),
	}
	cfg := &config.Config{}
	cfg.App.RecentProgressLimit = 10
	// コース自動完了の検証のため実物の EnrollmentService を同じモックで組む
	enrollmentSvc := NewEnrollmentService(db, m.enrollRepo, m.courseRepo, m.userRepo, &LogMailer{})
	svc := NewProgressService(db, m.progressRepo, m.courseRepo, m.enrollRepo, enrollmentSvc, cfg)
	return svc, m
}

func (m *progressTestMocks) reset() {
	m.progressRepo.Mock = mock.Mock{}
	m.courseRepo.Mock = mock.Mock{}
	m.enrollRepo.Mock = mock.Mock{}
	m.userRepo.Mock = mock.Mock{}
}

func (m *progressTestMocks) assertExpectations(t *testing.T) {
	m.progressRepo.AssertExpectations(t)
	m.courseRepo.AssertExpectations(t)
	m.enrollRepo.AssertExpectations(t)
	m.userRepo.AssertExpectations(t)
}

// --- Test RecordProgress ---
func Test_progressService_RecordProgress(t *testing.T) {
	ctx := context.Background()
	db := setupTestDBProgress()
	progressService, m := newProgressServiceForTest(db)

	userID := uuid.New()
	videoID := uuid.New()
	courseID := uuid.New()
	chapterID := uuid.New()

	paidVideo := &model.Video{
		VideoID:   videoID,
		ChapterID: chapterID,
		Title:     "ポインタとスライス",
		IsFree:    false,
		Chapter:   &model.Chapter{ChapterID: chapterID, CourseID: courseID},
	}
	freeVideo := &model.Video{
		VideoID:   videoID,
		ChapterID: chapterID,
		Title:     "コース紹介",
		IsFree:    true,
		Chapter:   &model.Chapter{ChapterID: chapterID, CourseID: courseID},
	}
	activeEnrollment := &model.Enrollment{EnrollmentID: uuid.New(), UserID: userID, CourseID: courseID, Status: model.EnrollmentActive}

	tests := []struct {
		name      string
		req       *model.UpdateProgressRequest
		setupMock func(m *progressTestMocks)
		wantErr   error
		check     func(t *testing.T, progress *model.Progress)
	}{
		{
			name: "正常系: 初回視聴で新規レコード作成",
			req:  &model.UpdateProgressRequest{WatchTime: intPtr(120)},
			setupMock: func(m *progressTestMocks) {
				m.courseRepo.On("FindVideoByID", ctx, db, videoID).Return(paidVideo, nil).Once()
				m.enrollRepo.On("FindByUserAndCourse", ctx, db, userID, courseID).Return(activeEnrollment, nil).Once()
				m.progressRepo.On("FindByUserAndVideo", ctx, mock.AnythingOfType("*gorm.DB"), userID, videoID).
					Return(nil, model.ErrNotFound).Once()
				m.progressRepo.On("Create", ctx, mock.AnythingOfType("*gorm.DB"), mock.AnythingOfType("*model.Progress")).
					Run(func(args mock.Arguments) {
						p := args.Get(2).(*model.Progress)
						assert.Equal(t, userID, p.UserID)
						assert.Equal(t, courseID, p.CourseID)
						assert.Equal(t, 120, p.WatchTime)
						assert.False(t, p.Completed)
					}).Return(nil).Once()
			},
			check: func(t *testing.T, progress *model.Progress) {
				assert.Equal(t, 120, progress.WatchTime)
				assert.False(t, progress.Completed)
			},
		},
		{
			name: "正常系: 既存レコードの視聴時間を更新",
			req:  &model.UpdateProgressRequest{WatchTime: intPtr(300)},
			setupMock: func(m *progressTestMocks) {
				existing := &model.Progress{ProgressID: uuid.New(), UserID: userID, VideoID: videoID, CourseID: courseID, WatchTime: 120}
				m.courseRepo.On("FindVideoByID", ctx, db, videoID).Return(paidVideo, nil).Once()
				m.enrollRepo.On("FindByUserAndCourse", ctx, db, userID, courseID).Return(activeEnrollment, nil).Once()
				m.progressRepo.On("FindByUserAndVideo", ctx, mock.AnythingOfType("*gorm.DB"), userID, videoID).
					Return(existing, nil).Once()
				m.progressRepo.On("Update", ctx, mock.AnythingOfType("*gorm.DB"), existing.ProgressID, mock.MatchedBy(func(updates map[string]interface{}) bool {
					_, hasCompleted := updates["completed"]
					return updates["watch_time"] == 300 && !hasCompleted
				})).Return(nil).Once()
			},
			check: func(t *testing.T, progress *model.Progress) {
				assert.Equal(t, 300, progress.WatchTime)
			},
		},
		{
			name: "正常系: completed=false を送っても完了済みは戻らない (単調増加)",
			req:  &model.UpdateProgressRequest{Completed: boolPtr(false), WatchTime: intPtr(10)},
			setupMock: func(m *progressTestMocks) {
				existing := &model.Progress{ProgressID: uuid.New(), UserID: userID, VideoID: videoID, CourseID: courseID, Completed: true, WatchTime: 600}
				m.courseRepo.On("FindVideoByID", ctx, db, videoID).Return(paidVideo, nil).Once()
				m.enrollRepo.On("FindByUserAndCourse", ctx, db, userID, courseID).Return(activeEnrollment, nil).Once()
				m.progressRepo.On("FindByUserAndVideo", ctx, mock.AnythingOfType("*gorm.DB"), userID, videoID).
					Return(existing, nil).Once()
				m.progressRepo.On("Update", ctx, mock.AnythingOfType("*gorm.DB"), existing.ProgressID, mock.MatchedBy(func(updates map[string]interface{}) bool {
					// completed キー自体を含めない (false での上書き禁止)
					_, hasCompleted := updates["completed"]
					return !hasCompleted
				})).Return(nil).Once()
			},
			check: func(t *testing.T, progress *model.Progress) {
				assert.True(t, progress.Completed)
			},
		},
		{
			name: "正常系: 無料動画は受講登録なしで記録できる",
			req:  &model.UpdateProgressRequest{WatchTime: intPtr(30)},
			setupMock: func(m *progressTestMocks) {
				m.courseRepo.On("FindVideoByID", ctx, db, videoID).Return(freeVideo, nil).Once()
				// enrollRepo.FindByUserAndCourse は呼ばれない
				m.progressRepo.On("FindByUserAndVideo", ctx, mock.AnythingOfType("*gorm.DB"), userID, videoID).
					Return(nil, model.ErrNotFound).Once()
				m.progressRepo.On("Create", ctx, mock.AnythingOfType("*gorm.DB"), mock.AnythingOfType("*model.Progress")).
					Return(nil).Once()
			},
		},
		{
			name: "正常系: 作成の競合に負けたら読み直して更新",
			req:  &model.UpdateProgressRequest{WatchTime: intPtr(45)},
			setupMock: func(m *progressTestMocks) {
				winner := &model.Progress{ProgressID: uuid.New(), UserID: userID, VideoID: videoID, CourseID: courseID, WatchTime: 40}
				m.courseRepo.On("FindVideoByID", ctx, db, videoID).Return(paidVideo, nil).Once()
				m.enrollRepo.On("FindByUserAndCourse", ctx, db, userID, courseID).Return(activeEnrollment, nil).Once()
				m.progressRepo.On("FindByUserAndVideo", ctx, mock.AnythingOfType("*gorm.DB"), userID, videoID).
					Return(nil, model.ErrNotFound).Once()
				m.progressRepo.On("Create", ctx, mock.AnythingOfType("*gorm.DB"), mock.AnythingOfType("*model.Progress")).
					Return(model.ErrConflict).Once()
				m.progressRepo.On("FindByUserAndVideo", ctx, mock.AnythingOfType("*gorm.DB"), userID, videoID).
					Return(winner, nil).Once()
				m.progressRepo.On("Update", ctx, mock.AnythingOfType("*gorm.DB"), winner.ProgressID, mock.AnythingOfType("map[string]interface {}")).
					Return(nil).Once()
			},
			check: func(t *testing.T, progress *model.Progress) {
				assert.Equal(t, 45, progress.WatchTime)
			},
		},
		{
			name: "異常系: 未登録ユーザーは有料動画の進捗を記録できない",
			req:  &model.UpdateProgressRequest{WatchTime: intPtr(10)},
			setupMock: func(m *progressTestMocks) {
				m.courseRepo.On("FindVideoByID", ctx, db, videoID).Return(paidVideo, nil).Once()
				m.enrollRepo.On("FindByUserAndCourse", ctx, db, userID, courseID).Return(nil, model.ErrNotFound).Once()
			},
			wantErr: model.ErrForbidden,
		},
		{
			name: "異常系: キャンセル済み登録では記録できない",
			req:  &model.UpdateProgressRequest{WatchTime: intPtr(10)},
			setupMock: func(m *progressTestMocks) {
				cancelled := &model.Enrollment{EnrollmentID: uuid.New(), UserID: userID, CourseID: courseID, Status: model.EnrollmentCancelled}
				m.courseRepo.On("FindVideoByID", ctx, db, videoID).Return(paidVideo, nil).Once()
				m.enrollRepo.On("FindByUserAndCourse", ctx, db, userID, courseID).Return(cancelled, nil).Once()
			},
			wantErr: model.ErrForbidden,
		},
		{
			name: "異常系: 動画が存在しない",
			req:  &model.UpdateProgressRequest{WatchTime: intPtr(10)},
			setupMock: func(m *progressTestMocks) {
				m.courseRepo.On("FindVideoByID", ctx, db, videoID).Return(nil, model.ErrNotFound).Once()
			},
			wantErr: model.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m.reset()
			if tt.setupMock != nil {
				tt.setupMock(m)
			}

			progress, err := progressService.RecordProgress(ctx, userID, videoID, tt.req)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, progress)
			} else {
				require.NoError(t, err)
				require.NotNil(t, progress)
				if tt.check != nil {
					tt.check(t, progress)
				}
			}

			m.assertExpectations(t)
		})
	}
}

// 最後の動画を完了すると受講登録が自動で completed に遷移すること
func Test_progressService_RecordProgress_AutoCompletesCourse(t *testing.T) {
	ctx := context.Background()
	db := setupTestDBProgress()
	progressService, m := newProgressServiceForTest(db)

	userID := uuid.New()
	videoID := uuid.New()
	courseID := uuid.New()
	chapterID := uuid.New()
	enrollmentID := uuid.New()

	video := &model.Video{
		VideoID:   videoID,
		ChapterID: chapterID,
		IsFree:    false,
		Chapter:   &model.Chapter{ChapterID: chapterID, CourseID: courseID},
	}
	activeEnrollment := &model.Enrollment{EnrollmentID: enrollmentID, UserID: userID, CourseID: courseID, Status: model.EnrollmentActive}
	existing := &model.Progress{ProgressID: uuid.New(), UserID: userID, VideoID: videoID, CourseID: courseID, WatchTime: 500}

	// 進捗の記録
	m.courseRepo.On("FindVideoByID", ctx, db, videoID).Return(video, nil).Once()
	m.enrollRepo.On("FindByUserAndCourse", ctx, db, userID, courseID).Return(activeEnrollment, nil).Once()
	m.progressRepo.On("FindByUserAndVideo", ctx, mock.AnythingOfType("*gorm.DB"), userID, videoID).Return(existing, nil).Once()
	m.progressRepo.On("Update", ctx, mock.AnythingOfType("*gorm.DB"), existing.ProgressID, mock.MatchedBy(func(updates map[string]interface{}) bool {
		return updates["completed"] == true
	})).Return(nil).Once()

	// コース完了判定: 全8本完了
	m.courseRepo.On("CountVideos", ctx, db, courseID).Return(int64(8), nil).Once()
	m.progressRepo.On("CountCompletedByUserAndCourse", ctx, db, userID, courseID).Return(int64(8), nil).Once()
	m.enrollRepo.On("FindActiveByUserAndCourse", ctx, db, userID, courseID).Return(activeEnrollment, nil).Once()

	// EnrollmentService.Complete 経由の遷移
	m.enrollRepo.On("FindByID", ctx, mock.AnythingOfType("*gorm.DB"), enrollmentID).Return(activeEnrollment, nil).Once()
	m.enrollRepo.On("TransitionFromActive", ctx, mock.AnythingOfType("*gorm.DB"), enrollmentID, model.EnrollmentCompleted, mock.AnythingOfType("*time.Time")).
		Return(int64(1), nil).Once()

	progress, err := progressService.RecordProgress(ctx, userID, videoID, &model.UpdateProgressRequest{Completed: boolPtr(true)})

	require.NoError(t, err)
	require.NotNil(t, progress)
	assert.True(t, progress.Completed)
	m.assertExpectations(t)
}

// まだ全動画が完了していなければ受講登録には触らないこと
func Test_progressService_RecordProgress_NoAutoCompleteWhenRemaining(t *testing.T) {
	ctx := context.Background()
	db := setupTestDBProgress()
	progressService, m := newProgressServiceForTest(db)

	userID := uuid.New()
	videoID := uuid.New()
	courseID := uuid.New()
	chapterID := uuid.New()

	video := &model.Video{
		VideoID:   videoID,
		ChapterID: chapterID,
		IsFree:    false,
		Chapter:   &model.Chapter{ChapterID: chapterID, CourseID: courseID},
	}
	activeEnrollment := &model.Enrollment{EnrollmentID: uuid.New(), UserID: userID, CourseID: courseID, Status: model.EnrollmentActive}

	m.courseRepo.On("FindVideoByID", ctx, db, videoID).Return(video, nil).Once()
	m.enrollRepo.On("FindByUserAndCourse", ctx, db, userID, courseID).Return(activeEnrollment, nil).Once()
	m.progressRepo.On("FindByUserAndVideo", ctx, mock.AnythingOfType("*gorm.DB"), userID, videoID).Return(nil, model.ErrNotFound).Once()
	m.progressRepo.On("Create", ctx, mock.AnythingOfType("*gorm.DB"), mock.AnythingOfType("*model.Progress")).Return(nil).Once()

	// 8本中3本しか完了していない
	m.courseRepo.On("CountVideos", ctx, db, courseID).Return(int64(8), nil).Once()
	m.progressRepo.On("CountCompletedByUserAndCourse", ctx, db, userID, courseID).Return(int64(3), nil).Once()
	// FindActiveByUserAndCourse / TransitionFromActive は呼ばれない

	_, err := progressService.RecordProgress(ctx, userID, videoID, &model.UpdateProgressRequest{Completed: boolPtr(true)})

	require.NoError(t, err)
	m.assertExpectations(t)
}

// --- Test GetVideoProgress ---
func Test_progressService_GetVideoProgress(t *testing.T) {
	ctx := context.Background()
	db := setupTestDBProgress()
	progressService, m := newProgressServiceForTest(db)

	userID := uuid.New()
	videoID := uuid.New()

	t.Run("正常系: 記録があればそのまま返す", func(t *testing.T) {
		m.reset()
		existing := &model.Progress{ProgressID: uuid.New(), UserID: userID, VideoID: videoID, Completed: true, WatchTime: 480}
		m.progressRepo.On("FindByUserAndVideo", ctx, db, userID, videoID).Return(existing, nil).Once()

		progress, err := progressService.GetVideoProgress(ctx, userID, videoID)

		require.NoError(t, err)
		assert.Equal(t, existing, progress)
		m.assertExpectations(t)
	})

	t.Run("正常系: 記録がなければゼロ値を返す (404にしない)", func(t *testing.T) {
		m.reset()
		m.progressRepo.On("FindByUserAndVideo", ctx, db, userID, videoID).Return(nil, model.ErrNotFound).Once()

		progress, err := progressService.GetVideoProgress(ctx, userID, videoID)

		require.NoError(t, err)
		require.NotNil(t, progress)
		assert.False(t, progress.Completed)
		assert.Equal(t, 0, progress.WatchTime)
		assert.Equal(t, userID, progress.UserID)
		assert.Equal(t, videoID, progress.VideoID)
		m.assertExpectations(t)
	})
}

// --- Test GetCourseProgress ---
func Test_progressService_GetCourseProgress(t *testing.T) {
	ctx := context.Background()
	db := setupTestDBProgress()
	progressService, m := newProgressServiceForTest(db)

	userID := uuid.New()
	courseID := uuid.New()
	course := &model.Course{CourseID: courseID, Title: "Go入門", Published: true}

	tests := []struct {
		name           string
		total          int64
		completed      int64
		wantPercentage int
	}{
		{name: "正常系: 3/8 は四捨五入で 38%", total: 8, completed: 3, wantPercentage: 38},
		{name: "正常系: 1/3 は 33%", total: 3, completed: 1, wantPercentage: 33},
		{name: "正常系: 2/3 は 67%", total: 3, completed: 2, wantPercentage: 67},
		{name: "正常系: 全完了で 100%", total: 5, completed: 5, wantPercentage: 100},
		{name: "正常系: 動画ゼロのコースは 0%", total: 0, completed: 0, wantPercentage: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m.reset()
			m.courseRepo.On("FindByID", ctx, db, courseID).Return(course, nil).Once()
			m.courseRepo.On("CountVideos", ctx, db, courseID).Return(tt.total, nil).Once()
			m.progressRepo.On("CountCompletedByUserAndCourse", ctx, db, userID, courseID).Return(tt.completed, nil).Once()

			resp, err := progressService.GetCourseProgress(ctx, userID, courseID)

			require.NoError(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, int(tt.total), resp.TotalVideos)
			assert.Equal(t, int(tt.completed), resp.CompletedVideos)
			assert.Equal(t, tt.wantPercentage, resp.Percentage)
			m.assertExpectations(t)
		})
	}

	t.Run("異常系: コースが存在しない", func(t *testing.T) {
		m.reset()
		m.courseRepo.On("FindByID", ctx, db, courseID).Return(nil, model.ErrNotFound).Once()

		resp, err := progressService.GetCourseProgress(ctx, userID, courseID)

		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrNotFound)
		assert.Nil(t, resp)
		m.assertExpectations(t)
	})
}

// --- Test ListRecent ---
func Test_progressService_ListRecent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDBProgress()
	progressService, m := newProgressServiceForTest(db)

	userID := uuid.New()
	now := time.Now()
	recent := []*model.Progress{
		{ProgressID: uuid.New(), UserID: userID, LastWatchedAt: now},
		{ProgressID: uuid.New(), UserID: userID, LastWatchedAt: now.Add(-time.Hour)},
	}

	m.progressRepo.On("FindRecentByUser", ctx, db, userID, 10).Return(recent, nil).Once()

	got, err := progressService.ListRecent(ctx, userID)

	require.NoError(t, err)
	assert.Len(t, got, 2)
	m.assertExpectations(t)
}
