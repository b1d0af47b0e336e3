package domain

// Topic categories as extracted from case documents.
const (
	CategoryPreliminar  = "preliminar"
	CategoryPrejudicial = "prejudicial"
	CategoryMerito      = "mérito"
)

// Topic is one discrete legal question extracted from the case documents,
// e.g. "Horas extras" or "Justiça gratuita".
type Topic struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Summary  string `json:"summary,omitempty"`
}

// LegalAnalysis is the structured reasoning the model produces for one topic.
type LegalAnalysis struct {
	Topic       string   `json:"topic"`
	Thesis      string   `json:"thesis"`
	Grounds     []string `json:"grounds"`
	Outcome     string   `json:"outcome"`
	Confidence  float64  `json:"confidence"`
	Citations   []string `json:"citations"`
}

// ModelTemplate is one reusable decision template recovered by the bulk
// import operation.
type ModelTemplate struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Body     string `json:"body"`
}
