package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/pantry-receipts/constants"
)

type LogEntry struct {
	ID        uuid.UUID
	Timestamp time.Time
	Level     constants.LogLevel
	Module    string
	Function  string
	Message   string
	Details   string
}
