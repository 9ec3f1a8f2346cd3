// internal/models/notification.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type Notification struct {
	BaseModel
	UserID  uuid.UUID          `json:"user_id" gorm:"type:uuid;not null;index"`
	Type    string             `json:"type" gorm:"type:varchar(50);not null;index"`
	Title   string             `json:"title" gorm:"size:255;not null"`
	Message string             `json:"message" gorm:"type:text;not null"`
	Data    JSONB              `json:"data" gorm:"type:jsonb"`
	Status  NotificationStatus `json:"status" gorm:"type:varchar(20);default:'unread';index"`
	ReadAt  *time.Time         `json:"read_at"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// Deposit is a fiat on-ramp transaction crediting a user's ledger balance.
type Deposit struct {
	BaseModel
	UserID           uuid.UUID     `json:"user_id" gorm:"type:uuid;not null;index"`
	Amount           float64       `json:"amount" gorm:"type:decimal(10,2);not null"`
	AmountMinor      uint64        `json:"amount_minor" gorm:"not null"`
	PaymentReference string        `json:"payment_reference" gorm:"size:255"`
	Status           DepositStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	ProcessedAt      *time.Time    `json:"processed_at"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

type AuditLog struct {
	BaseModel
	UserID       *uuid.UUID `json:"user_id" gorm:"type:uuid;index"`
	Action       string     `json:"action" gorm:"size:100;not null;index"`
	ResourceType string     `json:"resource_type" gorm:"size:50;not null;index"`
	ResourceID   *uuid.UUID `json:"resource_id" gorm:"type:uuid;index"`
	OldValues    JSONB      `json:"old_values" gorm:"type:jsonb"`
	NewValues    JSONB      `json:"new_values" gorm:"type:jsonb"`
	IPAddress    string     `json:"ip_address" gorm:"size:45"`
	UserAgent    string     `json:"user_agent" gorm:"type:text"`

	// Relationships
	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}
