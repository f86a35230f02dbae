package model

import (
	"time"

	"github.com/google/uuid"
)

// Certificate はコース修了の証明書 (発行後は不変)
// (user_id, course_id) と enrollment_id と certificate_number の
// ユニーク制約をストレージ側で張り、同時リクエストの競合を制約で塞ぐ
type Certificate struct {
	CertificateID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"certificate_id"`
	UserID            uuid.UUID `gorm:"type:uuid;not null;index:idx_cert_user_course,unique" json:"user_id"`
	CourseID          uuid.UUID `gorm:"type:uuid;not null;index:idx_cert_user_course,unique" json:"course_id"`
	EnrollmentID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"enrollment_id"`
	CertificateNumber string    `gorm:"not null;unique" json:"certificate_number"`
	IssuedAt          time.Time `gorm:"not null" json:"issued_at"`
	CreatedAt         time.Time `json:"created_at"`

	// 関連 (Preload用)
	Course *Course `gorm:"foreignKey:CourseID;references:CourseID" json:"course,omitempty"`
	User   *User   `gorm:"foreignKey:UserID;references:UserID" json:"-"`
}

func (Certificate) TableName() string {
	return "certificates"
}

// IssueCertificateResponse は発行APIのレスポンスDTO
// AlreadyIssued で「新規発行」と「発行済みを返した」を呼び出し元が区別できる
type IssueCertificateResponse struct {
	Certificate   *Certificate `json:"certificate"`
	AlreadyIssued bool         `json:"already_issued"`
}

// CertificateIssueData は外部レンダラに渡す描画用データ
// PDF等の生成はここでは行わない
type CertificateIssueData struct {
	HolderName        string    `json:"holder_name"`
	CourseName        string    `json:"course_name"`
	InstructorName    string    `json:"instructor_name"`
	CertificateNumber string    `json:"certificate_number"`
	IssuedAt          time.Time `json:"issued_at"`
}

// VerifyCertificateResponse は公開検証APIのレスポンスDTO
// 内部IDは一切含めない
type VerifyCertificateResponse struct {
	Valid      bool       `json:"valid"`
	HolderName string     `json:"holder_name,omitempty"`
	CourseName string     `json:"course_name,omitempty"`
	IssuedAt   *time.Time `json:"issued_at,omitempty"`
}
