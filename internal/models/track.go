package models

// Track is one physical object followed across sampling cycles.
type Track struct {
	ID         int     `json:"id"`
	Label      string  `json:"label"`
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
	Age        int     `json:"age"` // cycles since last match, 0 when freshly matched
}

// Fresh reports whether the track was confirmed in the latest cycle.
func (t Track) Fresh() bool {
	return t.Age == 0
}
