package modelstore

import "time"

// #region model-record
// ModelRecord is the catalogue entry for a saved curve: everything
// needed to find and re-fit it without touching the raw sample data.
type ModelRecord struct {
	Name        string
	Dimension   int
	SampleCount int
	PhaseDotRef float64
	Path        string // non-empty only for models imported from a file
	SavedAt     time.Time
}

// #endregion model-record
