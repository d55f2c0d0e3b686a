package model

// Sample is one incoming observation for a series. Value is a pointer so
// a JSON null survives decoding; null samples are filtered out before
// they reach the statistics engine.
type Sample struct {
	SeriesID  string   `json:"series_id"`
	Value     *float64 `json:"value"`
	Timestamp int64    `json:"timestamp"`
}
