package types

// FieldWeights weighs the three embedding slots when combining similarities
type FieldWeights struct {
	Bio       float64 `json:"bio" yaml:"bio"`
	Help      float64 `json:"help" yaml:"help"`
	Locations float64 `json:"locations" yaml:"locations"`
}

// DefaultFieldWeights returns bio=1.0, help=1.0, locations=0.5
func DefaultFieldWeights() FieldWeights {
	return FieldWeights{Bio: 1.0, Help: 1.0, Locations: 0.5}
}

// Validate rejects negative weights
func (w FieldWeights) Validate() error {
	if w.Bio < 0 || w.Help < 0 || w.Locations < 0 {
		return ErrInvalidWeights
	}
	return nil
}

// Of returns the weight for a slot
func (w FieldWeights) Of(f Field) float64 {
	switch f {
	case FieldBio:
		return w.Bio
	case FieldHelp:
		return w.Help
	case FieldLocations:
		return w.Locations
	}
	return 0
}

// Divisor returns the weight sum, or 1 when the sum is not positive
func (w FieldWeights) Divisor() float64 {
	if sum := w.Bio + w.Help + w.Locations; sum > 0 {
		return sum
	}
	return 1
}

// RerankWeights weighs the four signals of stage two
type RerankWeights struct {
	Embedding     float64 `json:"embedding_weight" yaml:"embedding"`
	ClassStrength float64 `json:"class_strength_weight" yaml:"class_strength"`
	Availability  float64 `json:"availability_weight" yaml:"availability"`
	Location      float64 `json:"location_weight" yaml:"location"`
}

// DefaultRerankWeights returns embedding 0.45, class 0.35, availability 0.10, location 0.10
func DefaultRerankWeights() RerankWeights {
	return RerankWeights{Embedding: 0.45, ClassStrength: 0.35, Availability: 0.10, Location: 0.10}
}

// Validate rejects negative weights
func (w RerankWeights) Validate() error {
	if w.Embedding < 0 || w.ClassStrength < 0 || w.Availability < 0 || w.Location < 0 {
		return ErrInvalidWeights
	}
	return nil
}

// Divisor returns the weight sum, or 1 when the sum is not positive
func (w RerankWeights) Divisor() float64 {
	if sum := w.Embedding + w.ClassStrength + w.Availability + w.Location; sum > 0 {
		return sum
	}
	return 1
}
