package constants

// ReceiptStatus is the processing state stored on receipts.status.
type ReceiptStatus string

// Stable values (store these exact strings in DB).
const (
	StatusAwaitingPreview    ReceiptStatus = "AWAITING_PREVIEW"
	StatusAwaitingProcessing ReceiptStatus = "AWAITING_PROCESSING"
	StatusOCRInProgress      ReceiptStatus = "OCR_IN_PROGRESS"
	StatusAIInProgress       ReceiptStatus = "AI_IN_PROGRESS"
	StatusDone               ReceiptStatus = "DONE"
	StatusFailed             ReceiptStatus = "FAILED"
)

// transitions is the directed status graph. DONE and FAILED only lead back to
// AWAITING_PROCESSING, which is how a receipt is re-submitted.
var transitions = map[ReceiptStatus][]ReceiptStatus{
	StatusAwaitingPreview:    {StatusAwaitingProcessing},
	StatusAwaitingProcessing: {StatusOCRInProgress},
	StatusOCRInProgress:      {StatusAIInProgress, StatusFailed},
	StatusAIInProgress:       {StatusDone, StatusFailed},
	StatusDone:               {StatusAwaitingProcessing},
	StatusFailed:             {StatusAwaitingProcessing},
}

// CanTransition reports whether from -> to is an edge of the status graph.
func CanTransition(from, to ReceiptStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Predecessors returns every status that may move into to.
func Predecessors(to ReceiptStatus) []ReceiptStatus {
	var out []ReceiptStatus
	for _, from := range allStatuses {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

var allStatuses = []ReceiptStatus{
	StatusAwaitingPreview,
	StatusAwaitingProcessing,
	StatusOCRInProgress,
	StatusAIInProgress,
	StatusDone,
	StatusFailed,
}

func (s ReceiptStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// InProgress is true while a processing run owns the receipt.
func (s ReceiptStatus) InProgress() bool {
	return s == StatusOCRInProgress || s == StatusAIInProgress
}

func (s ReceiptStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Progress is the coarse completion fraction reported to pollers.
func (s ReceiptStatus) Progress() float64 {
	switch s {
	case StatusOCRInProgress:
		return 0.3
	case StatusAIInProgress:
		return 0.6
	case StatusDone, StatusFailed:
		return 1.0
	default:
		return 0
	}
}

// MappingStatus is the reconciliation state of a receipt item.
type MappingStatus string

const (
	MappingPending MappingStatus = "PENDING"
	MappingMapped  MappingStatus = "MAPPED"
	MappingNew     MappingStatus = "NEW"
	MappingIgnored MappingStatus = "IGNORED"
)

func (m MappingStatus) Valid() bool {
	switch m {
	case MappingPending, MappingMapped, MappingNew, MappingIgnored:
		return true
	}
	return false
}

// LogLevel is stored on log_entries.level.
type LogLevel string

const (
	LevelInfo    LogLevel = "INFO"
	LevelWarning LogLevel = "WARNING"
	LevelError   LogLevel = "ERROR"
)
