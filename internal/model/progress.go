package model

import (
	"time"

	"github.com/google/uuid"
)

// Progress は動画ごとの視聴進捗を表します
// completed は単調増加 (一度 true になったら false に戻らない)
type Progress struct {
	ProgressID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"progress_id"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;index:idx_user_video,unique" json:"user_id"`
	VideoID       uuid.UUID `gorm:"type:uuid;not null;index:idx_user_video,unique" json:"video_id"`
	CourseID      uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"` // 集計クエリ用の非正規化
	Completed     bool      `gorm:"not null;default:false" json:"completed"`
	WatchTime     int       `gorm:"not null;default:0" json:"watch_time"` // 秒
	LastWatchedAt time.Time `gorm:"not null" json:"last_watched_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// 関連 (Preload用)
	Video *Video `gorm:"foreignKey:VideoID;references:VideoID" json:"-"`
}

func (Progress) TableName() string {
	return "progress"
}

// UpdateProgressRequest は進捗更新リクエストDTO
// 完了判定そのもの (視聴位置が尺の90%到達など) は再生クライアント側の責務で、
// サーバは渡されたフラグを記録するだけ
type UpdateProgressRequest struct {
	Completed *bool `json:"completed,omitempty"`
	WatchTime *int  `json:"watch_time,omitempty" validate:"omitempty,min=0"`
}

// CourseProgressResponse はコース完了率のレスポンスDTO
type CourseProgressResponse struct {
	TotalVideos     int `json:"total_videos"`
	CompletedVideos int `json:"completed_videos"`
	Percentage      int `json:"percentage"`
}
