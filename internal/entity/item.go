package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/pantry-receipts/constants"
)

// Item is a product line. With ReceiptID nil it is a pantry item.
type Item struct {
	ID                 uuid.UUID
	Name               string
	Category           constants.Category
	Price              decimal.Decimal
	ExpiryDate         *time.Time
	ReceiptQuantity    int
	PantryQuantity     int
	ReceiptID          *uuid.UUID
	MappingStatus      constants.MappingStatus
	MappedToID         *uuid.UUID
	MappingSuggestions []Suggestion
	CreatedAt          time.Time
}

func (i *Item) InPantry() bool { return i.ReceiptID == nil }

// NewItem is the insert shape for a freshly extracted line.
type NewItem struct {
	Name            string
	Category        constants.Category
	Price           decimal.Decimal
	ExpiryDate      *time.Time
	ReceiptQuantity int
}

// Suggestion is a ranked pantry candidate for a receipt item.
type Suggestion struct {
	ID         uuid.UUID          `json:"id"`
	Name       string             `json:"name"`
	Category   constants.Category `json:"category"`
	Similarity int                `json:"similarity"`
}

// ItemEdit carries user corrections applied during product import.
type ItemEdit struct {
	ID              uuid.UUID
	Name            *string
	Category        *constants.Category
	Price           *decimal.Decimal
	ReceiptQuantity *int
	ExpiryDate      *time.Time
}

// Statistics summarises products and receipts.
type Statistics struct {
	TotalProducts     int
	MappedProducts    int
	TotalReceipts     int
	ProcessedReceipts int
	PerCategory       map[constants.Category]int
}
