package models

import "time"

type User struct {
	ID          string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	Username    string    `json:"username" gorm:"type:varchar(255);not null;uniqueIndex"`
	DisplayName string    `json:"display_name" gorm:"type:varchar(255);not null"`
	AvatarURL   *string   `json:"avatar_url,omitempty" gorm:"type:varchar(512)"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}
