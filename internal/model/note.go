package model

import "time"

// Note is the slice of a journal note that reminders depend on.
type Note struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36" bson:"_id"`
	UserID    string    `json:"userId" gorm:"index;not null" bson:"userId"`
	Title     string    `json:"title" gorm:"not null" bson:"title"`
	Content   string    `json:"content" gorm:"type:text" bson:"content"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime" bson:"updatedAt"`
}
