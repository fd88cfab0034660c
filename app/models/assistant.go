package models

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PerfumeAnalysis is the JSON contract of POST /api/image-analysis.
type PerfumeAnalysis struct {
	PerfumeName string           `json:"perfumeName"`
	Brand       string           `json:"brand"`
	Type        string           `json:"type"`
	Confidence  float64          `json:"confidence"`
	Notes       []string         `json:"notes"`
	Description string           `json:"description"`
	Occasions   []string         `json:"occasions"`
	Longevity   string           `json:"longevity"`
	Sillage     string           `json:"sillage"`
	Gender      string           `json:"gender"`
	PriceRange  string           `json:"price_range"`
	Similar     []SimilarPerfume `json:"similar"`
}

type SimilarPerfume struct {
	Name       string  `json:"name"`
	Brand      string  `json:"brand"`
	Similarity float64 `json:"similarity"`
	Price      string  `json:"price"`
	Image      string  `json:"image"`
}
