// internal/model/error.go
package model

import "errors"

// アプリケーション固有のエラー
// ハンドラはメッセージ文字列ではなく、この種別で分岐する
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInternalServer     = errors.New("internal server error")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("resource conflict") // 重複エラー用 (受講登録の二重作成など)
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrCourseNotCompleted = errors.New("course not completed")
	ErrEmptyQuiz          = errors.New("quiz has no questions")
	ErrInvalidSignature   = errors.New("invalid payment signature")
)

// ErrorDetail はAPIエラーレスポンスに含める詳細情報
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// APIErrorResponse はAPIエラーレスポンスの構造体
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// AppError はエラーコード・ユーザ向けメッセージ・原因エラーを保持するカスタムエラー
type AppError struct {
	Detail ErrorDetail
	Err    error // 原因となったエラー (sentinelエラーをラップする)
}

func NewAppError(code, message, field string, err error) *AppError {
	return &AppError{
		Detail: ErrorDetail{
			Code:    code,
			Message: message,
			Field:   field,
		},
		Err: err,
	}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Detail.Code + ": " + e.Err.Error()
	}
	return e.Detail.Code + ": " + e.Detail.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}
