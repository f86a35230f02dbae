package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

type QuestionType string

const (
	QuestionMCQ      QuestionType = "mcq"
	QuestionFlipcard QuestionType = "flipcard"
)

// Quiz は章に1つ紐づく小テスト
type Quiz struct {
	QuizID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"quiz_id"`
	ChapterID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"chapter_id"`
	Title        string    `gorm:"not null" json:"title"`
	Description  string    `json:"description"`
	PassingScore int       `gorm:"not null;default:70" json:"passing_score"` // 0-100
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// 関連 (Preload用)
	Questions []QuizQuestion `gorm:"foreignKey:QuizID" json:"-"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

// QuizQuestion は設問
type QuizQuestion struct {
	QuestionID    uuid.UUID    `gorm:"type:uuid;primaryKey" json:"question_id"`
	QuizID        uuid.UUID    `gorm:"type:uuid;not null;index" json:"quiz_id"`
	Type          QuestionType `gorm:"not null" json:"type"`
	Question      string       `gorm:"not null" json:"question"`
	Options       StringList   `gorm:"type:jsonb" json:"options,omitempty"` // mcq のみ
	CorrectAnswer string       `gorm:"not null" json:"-"`                   // クライアントには返さない
	Explanation   string       `json:"explanation,omitempty"`
	Position      int          `gorm:"not null;default:0" json:"position"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func (QuizQuestion) TableName() string {
	return "quiz_questions"
}

// QuizAttempt は採点済みの回答1回分 (追記専用、更新・削除なし)
type QuizAttempt struct {
	AttemptID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"attempt_id"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index:idx_user_quiz" json:"user_id"`
	QuizID      uuid.UUID `gorm:"type:uuid;not null;index:idx_user_quiz" json:"quiz_id"`
	Answers     AnswerMap `gorm:"type:jsonb;not null" json:"answers"`
	Score       int       `gorm:"not null" json:"score"` // 0-100 整数
	Passed      bool      `gorm:"not null" json:"passed"`
	CompletedAt time.Time `gorm:"not null" json:"completed_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

// AnswerMap は questionID → 回答文字列 のマップ (jsonbカラムに保存)
type AnswerMap map[string]string

func (m AnswerMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *AnswerMap) Scan(value interface{}) error {
	if value == nil {
		*m = AnswerMap{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return errors.New("unsupported type for AnswerMap")
	}
}

// StringList は文字列配列のjsonbカラム (mcqの選択肢)
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return errors.New("unsupported type for StringList")
	}
}

// SubmitAttemptRequest は回答送信リクエストDTO
type SubmitAttemptRequest struct {
	Answers map[string]string `json:"answers" validate:"required"`
}

// QuizResult は採点結果のレスポンスDTO
type QuizResult struct {
	Score          int  `json:"score"`
	Passed         bool `json:"passed"`
	CorrectCount   int  `json:"correct_count"`
	TotalQuestions int  `json:"total_questions"`
}

// SubmitAttemptResponse は回答送信のレスポンスDTO
type SubmitAttemptResponse struct {
	Attempt *QuizAttempt `json:"attempt"`
	Result  *QuizResult  `json:"result"`
}

// QuestionResult は設問ごとの採点詳細
type QuestionResult struct {
	Question      string       `json:"question"`
	Type          QuestionType `json:"type"`
	UserAnswer    *string      `json:"user_answer"`
	CorrectAnswer string       `json:"correct_answer"`
	IsCorrect     bool         `json:"is_correct"`
	Explanation   string       `json:"explanation,omitempty"`
}

// AttemptResultsResponse は回答履歴詳細のレスポンスDTO
type AttemptResultsResponse struct {
	Score           int              `json:"score"`
	Passed          bool             `json:"passed"`
	CompletedAt     time.Time        `json:"completed_at"`
	DetailedResults []QuestionResult `json:"detailed_results"`
}
