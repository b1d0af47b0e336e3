package domain

// Correction types emitted by the double-check audit pass.
const (
	CorrectionRemove     = "remove"
	CorrectionAdd        = "add"
	CorrectionMerge      = "merge"
	CorrectionReclassify = "reclassify"
	CorrectionModify     = "modify"
	CorrectionImprove    = "improve"
)

// Correction is a single suggested fix from the audit pass.
type Correction struct {
	Type          string `json:"type"`
	Description   string `json:"description"`
	OriginalText  string `json:"original_text,omitempty"`
	CorrectedText string `json:"corrected_text,omitempty"`
}

// CorrectionsReport bundles the audit pass output. Confidence is in [0,1].
type CorrectionsReport struct {
	Corrections []Correction `json:"corrections"`
	Confidence  float64      `json:"confidence"`
	Summary     string       `json:"summary"`
}

// Empty reports whether the audit produced no corrections.
func (r CorrectionsReport) Empty() bool { return len(r.Corrections) == 0 }
