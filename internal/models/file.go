// internal/models/file.go
package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// FileRecord is the database-side bookkeeping for an uploaded file. Its
// OwnerID never changes after upload; the ledger item registered for the
// same content keeps its own owner, and the two are not reconciled.
type FileRecord struct {
	BaseModel
	OwnerID     uuid.UUID      `json:"owner_id" gorm:"type:uuid;not null;index"`
	Name        string         `json:"name" gorm:"size:255;not null"`
	ContentID   string         `json:"content_id" gorm:"size:128;not null;index"`
	Size        int64          `json:"size" gorm:"not null"`
	MimeType    string         `json:"mime_type" gorm:"size:100"`
	Description string         `json:"description" gorm:"type:text"`
	Price       float64        `json:"price" gorm:"type:decimal(10,2);default:0"`
	RentalPrice float64        `json:"rental_price" gorm:"type:decimal(10,2);default:0"`
	IsPublic    bool           `json:"is_public" gorm:"default:false"`
	Tags        pq.StringArray `json:"tags" gorm:"type:text[]"`
	ItemID      *uint64        `json:"item_id,omitempty" gorm:"index"` // ledger item id once registered

	// Relationships
	Owner User `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
}
