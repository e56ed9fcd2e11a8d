package model

import "time"

// Priority labels assigned by the analysis service. Anything outside this set
// is kept as-is in the record but sorts after every recognized label.
const (
	PriorityHigh   = "High"
	PriorityMedium = "Medium"
	PriorityLow    = "Low"
)

// PriorityRank maps a priority label to its sort rank. Unrecognized or empty
// labels rank last so that legacy rows without a priority never break sorting.
func PriorityRank(priority string) int {
	switch priority {
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Document represents one uploaded or imported file and its derived metadata.
// This is a pure domain model with no database-specific dependencies or tags.
// ID, Name, Path, MimeType, SizeBytes and CreatedAt are set once at creation;
// the AI-derived fields are replaced as a unit on re-analysis.
type Document struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Department     string    `json:"department"`
	Name           string    `json:"name"`
	Path           string    `json:"path"`
	MimeType       string    `json:"mime_type"`
	SizeBytes      int64     `json:"size_bytes"`
	AISummary      string    `json:"ai_summary"`
	Priority       string    `json:"priority"`
	ActionRequired string    `json:"action_required"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}

// Analysis is the classification tuple returned by the analysis service.
type Analysis struct {
	Summary        string `json:"summary"`
	Department     string `json:"department"`
	Priority       string `json:"priority"`
	ActionRequired string `json:"action_required"`
}
