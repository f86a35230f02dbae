package model

import (
	"time"

	"github.com/google/uuid"
)

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
)

// Enrollment はユーザーとコースの受講関係を表します
// (user_id, course_id) の複合ユニークインデックスが二重登録の最終防衛線
type Enrollment struct {
	EnrollmentID uuid.UUID        `gorm:"type:uuid;primaryKey" json:"enrollment_id"`
	UserID       uuid.UUID        `gorm:"type:uuid;not null;index:idx_user_course,unique" json:"user_id"`
	CourseID     uuid.UUID        `gorm:"type:uuid;not null;index:idx_user_course,unique" json:"course_id"`
	Status       EnrollmentStatus `gorm:"not null;default:'active'" json:"status"`
	PaymentID    *string          `gorm:"default:null" json:"payment_id,omitempty"` // 無料受講の場合は null
	AmountPaid   float64          `gorm:"not null;default:0" json:"amount_paid"`
	EnrolledAt   time.Time        `gorm:"not null" json:"enrolled_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"` // active→completed 遷移時に一度だけ設定
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`

	// 関連 (Preload用)
	Course *Course `gorm:"foreignKey:CourseID;references:CourseID" json:"course,omitempty"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}

// EnrollmentStatsResponse はダッシュボード用の集計レスポンスDTO
type EnrollmentStatsResponse struct {
	EnrolledCourses   int `json:"enrolled_courses"`
	CompletedCourses  int `json:"completed_courses"`
	InProgressCourses int `json:"in_progress_courses"`
}
