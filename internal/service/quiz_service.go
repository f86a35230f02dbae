package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"go_course_platform/internal/middleware"
	"go_course_platform/internal/model"
	"go_course_platform/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QuizService は小テストの出題・採点・履歴を扱います
type QuizService interface {
	GetQuizForChapter(ctx context.Context, chapterID uuid.UUID) (*model.Quiz, error)
	SubmitAttempt(ctx context.Context, userID, quizID uuid.UUID, req *model.SubmitAttemptRequest) (*model.SubmitAttemptResponse, error)
	ListAttempts(ctx context.Context, userID, quizID uuid.UUID) ([]*model.QuizAttempt, error)
	GetResults(ctx context.Context, attemptID, callerID uuid.UUID, callerRole string) (*model.AttemptResultsResponse, error)
}

type quizService struct {
	db       *gorm.DB
	quizRepo repository.QuizRepository
}

func NewQuizService(db *gorm.DB, quizRepo repository.QuizRepository) QuizService {
	return &quizService{
		db:       db,
		quizRepo: quizRepo,
	}
}

// GetQuizForChapter は出題用のクイズを返します。
// 正解 (CorrectAnswer) はモデルの json:"-" でレスポンスに出ない。
func (s *quizService) GetQuizForChapter(ctx context.Context, chapterID uuid.UUID) (*model.Quiz, error) {
	quiz, err := s.quizRepo.FindByChapter(ctx, s.db, chapterID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewAppError("NOT_FOUND", "この章にはクイズがありません。", "chapter_id", model.ErrNotFound)
		}
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "クイズの取得に失敗しました。", "", err)
	}
	return quiz, nil
}

// SubmitAttempt は回答を採点して履歴に追記します。
// 採点は前後空白の除去と小文字化をかけた上での完全一致。
// 未回答の設問は不正解として数え、分母は常に全設問数。
func (s *quizService) SubmitAttempt(ctx context.Context, userID, quizID uuid.UUID, req *model.SubmitAttemptRequest) (*model.SubmitAttemptResponse, error) {
	logger := middleware.GetLogger(ctx).With("user_id", userID, "quiz_id", quizID)

	quiz, err := s.quizRepo.FindByID(ctx, s.db, quizID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewAppError("NOT_FOUND", "クイズが見つかりません。", "quiz_id", model.ErrNotFound)
		}
		logger.Error("Failed to find quiz", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "クイズの取得に失敗しました。", "", err)
	}

	if len(quiz.Questions) == 0 {
		// 設問ゼロのクイズは採点できない (0除算を100点にしない)
		return nil, model.NewAppError("EMPTY_QUIZ", "このクイズには設問がないため回答できません。", "", model.ErrEmptyQuiz)
	}

	correct := 0
	for _, q := range quiz.Questions {
		answer, ok := req.Answers[q.QuestionID.String()]
		if !ok {
			continue
		}
		if normalizeAnswer(answer) == normalizeAnswer(q.CorrectAnswer) {
			correct++
		}
	}

	total := len(quiz.Questions)
	score := int(math.Round(float64(correct) / float64(total) * 100))
	passed := score >= quiz.PassingScore

	attempt := &model.QuizAttempt{
		AttemptID:   uuid.New(),
		UserID:      userID,
		QuizID:      quizID,
		Answers:     model.AnswerMap(req.Answers),
		Score:       score,
		Passed:      passed,
		CompletedAt: time.Now(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.quizRepo.CreateAttempt(ctx, tx, attempt)
	})
	if err != nil {
		logger.Error("Failed to persist quiz attempt", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "回答の保存に失敗しました。", "", err)
	}

	logger.Info("Quiz attempt recorded", "attempt_id", attempt.AttemptID, "score", score, "passed", passed)

	return &model.SubmitAttemptResponse{
		Attempt: attempt,
		Result: &model.QuizResult{
			Score:          score,
			Passed:         passed,
			CorrectCount:   correct,
			TotalQuestions: total,
		},
	}, nil
}

// ListAttempts は本人の回答履歴を新しい順に返します
func (s *quizService) ListAttempts(ctx context.Context, userID, quizID uuid.UUID) ([]*model.QuizAttempt, error) {
	attempts, err := s.quizRepo.FindAttemptsByUserAndQuiz(ctx, s.db, userID, quizID)
	if err != nil {
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "回答履歴の取得に失敗しました。", "", err)
	}
	return attempts, nil
}

// GetResults は設問ごとの採点詳細を返します。
// 正解を含むので本人か管理者のみ閲覧可能。
func (s *quizService) GetResults(ctx context.Context, attemptID, callerID uuid.UUID, callerRole string) (*model.AttemptResultsResponse, error) {
	logger := middleware.GetLogger(ctx).With("attempt_id", attemptID)

	attempt, err := s.quizRepo.FindAttemptByID(ctx, s.db, attemptID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewAppError("NOT_FOUND", "回答が見つかりません。", "", model.ErrNotFound)
		}
		logger.Error("Failed to find attempt", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "回答の取得に失敗しました。", "", err)
	}

	if attempt.UserID != callerID && callerRole != model.RoleAdmin {
		return nil, model.NewAppError("FORBIDDEN", "この回答を閲覧する権限がありません。", "", model.ErrForbidden)
	}

	quiz, err := s.quizRepo.FindByID(ctx, s.db, attempt.QuizID)
	if err != nil {
		logger.Error("Failed to find quiz for attempt", "error", err)
		return nil, model.NewAppError("INTERNAL_SERVER_ERROR", "クイズの取得に失敗しました。", "", err)
	}

	results := make([]model.QuestionResult, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		var userAnswer *string
		isCorrect := false
		if a, ok := attempt.Answers[q.QuestionID.String()]; ok {
			answer := a
			userAnswer = &answer
			isCorrect = normalizeAnswer(a) == normalizeAnswer(q.CorrectAnswer)
		}
		results = append(results, model.QuestionResult{
			Question:      q.Question,
			Type:          q.Type,
			UserAnswer:    userAnswer,
			CorrectAnswer: q.CorrectAnswer,
			IsCorrect:     isCorrect,
			Explanation:   q.Explanation,
		})
	}

	return &model.AttemptResultsResponse{
		Score:           attempt.Score,
		Passed:          attempt.Passed,
		CompletedAt:     attempt.CompletedAt,
		DetailedResults: results,
	}, nil
}

func normalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
