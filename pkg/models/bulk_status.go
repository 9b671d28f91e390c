package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BulkStatus is the stored status of one bulk command. Payload holds the
// encoded status; the other columns are projections of it for querying.
type BulkStatus struct {
	CommandID string `gorm:"type:varchar(128);primaryKey" json:"commandId"`

	Action   string `gorm:"type:varchar(255);not null;index:idx_bulk_status_action" json:"action"`
	State    string `gorm:"type:varchar(32);not null;index:idx_bulk_status_state" json:"state"`
	Username string `gorm:"type:varchar(255)" json:"username,omitempty"`

	Total     int64 `gorm:"not null;default:0" json:"total"`
	Processed int64 `gorm:"not null;default:0" json:"processed"`
	HasError  bool  `gorm:"not null;default:false" json:"hasError"`

	Payload JSON `gorm:"not null" json:"payload"`

	SubmitTime    *time.Time `json:"submitTime,omitempty"`
	CompletedTime *time.Time `json:"completedTime,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name.
func (BulkStatus) TableName() string {
	return "bulk_status"
}

// GetBulkStatus returns the row of commandID, or nil when there is none.
func GetBulkStatus(db *gorm.DB, commandID string) (*BulkStatus, error) {
	var row BulkStatus
	err := db.Where("command_id = ?", commandID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Upsert inserts the row or replaces every column of the existing one.
func (b *BulkStatus) Upsert(db *gorm.DB) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "command_id"}},
		UpdateAll: true,
	}).Create(b).Error
}

// FindBulkStatusesByState returns up to limit rows in state, most recently
// updated first.
func FindBulkStatusesByState(db *gorm.DB, state string, limit int) ([]BulkStatus, error) {
	var rows []BulkStatus
	err := db.Where("state = ?", state).
		Order("updated_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
