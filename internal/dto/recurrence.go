package dto

// GenerateOccurrencesRequest overrides the pattern's own horizon when set.
type GenerateOccurrencesRequest struct {
	HorizonMonths int `json:"horizonMonths" validate:"omitempty,min=1,max=24"`
}

// GenerateOccurrencesResponse lists the ids created by one generation call.
type GenerateOccurrencesResponse struct {
	PatternID string   `json:"patternId"`
	Created   []string `json:"created"`
	Count     int      `json:"count"`
}

// SweepError describes one failed item in a batch sweep.
type SweepError struct {
	ID      string `json:"id" yaml:"id"`
	Message string `json:"message" yaml:"message"`
}

// SweepReport summarises a generation or reanchor sweep.
type SweepReport struct {
	Task      string       `json:"task" yaml:"task"`
	Processed int          `json:"processed" yaml:"processed"`
	Succeeded int          `json:"succeeded" yaml:"succeeded"`
	Failed    int          `json:"failed" yaml:"failed"`
	Skipped   int          `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Created   int          `json:"created,omitempty" yaml:"created,omitempty"`
	Adjusted  int          `json:"adjusted,omitempty" yaml:"adjusted,omitempty"`
	Errors    []SweepError `json:"errors" yaml:"errors"`
}

// AddError records a failed item.
func (r *SweepReport) AddError(id string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, SweepError{ID: id, Message: err.Error()})
}
