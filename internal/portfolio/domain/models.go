package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

// Portfolio is a named group of properties tracked together, typically
// one landlord's or lender's holdings.
type Portfolio struct {
	ID        snowflake.ID   `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"type:text;not null" json:"name"`
	Slug      string         `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	Notes     string         `gorm:"type:text" json:"notes,omitempty"`
	BBLs      pq.StringArray `gorm:"type:text[];not null" json:"bbls"`
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Portfolio) TableName() string { return "portfolios" }
