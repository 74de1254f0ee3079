package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/pantry-receipts/constants"
)

// Receipt is an uploaded proof of purchase and its processing state.
type Receipt struct {
	ID               uuid.UUID
	OriginalFilename string
	FilePath         string
	OriginalPath     *string
	MIMEType         string
	ThumbnailPath    *string
	Comment          string
	Status           constants.ReceiptStatus
	DetailedStatus   *string
	Progress         float64
	SubmittedAt      time.Time
	ProcessedAt      *time.Time
	ProcessingError  *string
	StoreName        *string
	PurchaseDate     *time.Time
	TotalAmount      *decimal.Decimal
}

// ReceiptStatusView is what pollers see.
type ReceiptStatusView struct {
	ID             uuid.UUID
	Status         constants.ReceiptStatus
	DetailedStatus string
	Error          string
	Progress       float64
}

func (r *Receipt) StatusView() ReceiptStatusView {
	v := ReceiptStatusView{ID: r.ID, Status: r.Status, Progress: r.Progress}
	if r.DetailedStatus != nil {
		v.DetailedStatus = *r.DetailedStatus
	}
	if r.ProcessingError != nil {
		v.Error = *r.ProcessingError
	}
	return v
}

// ReceiptMetadata is copied onto the receipt after a successful extraction.
type ReceiptMetadata struct {
	StoreName    string
	PurchaseDate time.Time
	TotalAmount  decimal.Decimal
}
