package domain

import "time"

// Comment представляет комментарий. ParentID == nil означает корневой комментарий.
type Comment struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserName  string    `json:"user_name" gorm:"type:varchar(50);not null;index"`
	Email     string    `json:"email" gorm:"type:varchar(254);not null;index"`
	Homepage  *string   `json:"homepage" gorm:"type:varchar(200)"`
	Text      string    `json:"text" gorm:"type:text;not null"`
	ParentID  *string   `json:"parent" gorm:"type:varchar(36);index"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;index"`
}

// IsRoot сообщает, является ли комментарий корневым.
func (c *Comment) IsRoot() bool {
	return c.ParentID == nil
}

// Attachment - файл, прикреплённый к комментарию.
// Пока CommentID == nil, вложение "осиротевшее" и держит UploadKey.
type Attachment struct {
	ID          string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	CommentID   *string   `json:"comment,omitempty" gorm:"type:varchar(36);index"`
	File        string    `json:"file" gorm:"type:varchar(512);not null"`
	FileName    string    `json:"file_name" gorm:"type:varchar(255);not null"`
	ContentType string    `json:"content_type" gorm:"type:varchar(127)"`
	Size        int64     `json:"size"`
	UploadKey   *string   `json:"upload_key,omitempty" gorm:"type:varchar(36);index"`
	CreatedAt   time.Time `json:"uploaded_at" gorm:"not null"`
}

// IsOrphan сообщает, ожидает ли вложение привязки к комментарию.
func (a *Attachment) IsOrphan() bool {
	return a.CommentID == nil && a.UploadKey != nil
}
