package types

// Candidate is a stage one result: a tutor and its embedding similarity
type Candidate struct {
	TutorID             int64   `json:"tutor_id"`
	EmbeddingSimilarity float64 `json:"embedding_similarity"`
}

// RankedMatch is a stage two result carrying every component signal
type RankedMatch struct {
	TutorID             int64   `json:"tutor_id"`
	FinalScore          float64 `json:"final_score"`
	EmbeddingSimilarity float64 `json:"embedding_similarity"`
	ClassStrength       float64 `json:"class_strength"`
	AvailabilityOverlap float64 `json:"availability_overlap"`
	LocationMatch       float64 `json:"location_match"`
}
