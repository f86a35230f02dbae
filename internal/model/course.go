package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Course はコース情報 (コンテンツ管理は対象外、読み取りのみ)
type Course struct {
	CourseID     uuid.UUID      `gorm:"type:uuid;primaryKey" json:"course_id"`
	Title        string         `gorm:"not null" json:"title"`
	Description  string         `json:"description"`
	InstructorID uuid.UUID      `gorm:"type:uuid;not null;index" json:"instructor_id"`
	Price        float64        `gorm:"not null;default:0" json:"price"`
	Currency     string         `gorm:"not null;default:'INR'" json:"currency"`
	Published    bool           `gorm:"not null;default:false" json:"published"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	// 関連 (Preload用)
	Instructor *User     `gorm:"foreignKey:InstructorID;references:UserID" json:"-"`
	Chapters   []Chapter `gorm:"foreignKey:CourseID" json:"-"`
}

func (Course) TableName() string {
	return "courses"
}

// Chapter はコース内の章
type Chapter struct {
	ChapterID uuid.UUID `gorm:"type:uuid;primaryKey" json:"chapter_id"`
	CourseID  uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`
	Title     string    `gorm:"not null" json:"title"`
	Position  int       `gorm:"not null;default:0" json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Videos []Video `gorm:"foreignKey:ChapterID" json:"-"`
}

func (Chapter) TableName() string {
	return "chapters"
}

// Video は章内の動画
// IsFree が真の動画は未受講でも視聴・進捗記録を許可する
// (無料プレビューの判定は is_free フラグを唯一の情報源とする)
type Video struct {
	VideoID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"video_id"`
	ChapterID uuid.UUID `gorm:"type:uuid;not null;index" json:"chapter_id"`
	Title     string    `gorm:"not null" json:"title"`
	Duration  int       `gorm:"not null;default:0" json:"duration"` // 秒
	Position  int       `gorm:"not null;default:0" json:"position"`
	IsFree    bool      `gorm:"not null;default:false" json:"is_free"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Chapter *Chapter `gorm:"foreignKey:ChapterID;references:ChapterID" json:"-"`
}

func (Video) TableName() string {
	return "videos"
}
