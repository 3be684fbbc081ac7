package model

// CatalogSummary is passed to the Selector port so an LLM-backed
// implementation can ground its choice without re-deriving catalog
// statistics itself: counts by category, how many POIs require booking,
// and how many are open on each weekday.
type CatalogSummary struct {
	TotalPOIs        int            `json:"total_pois"`
	CountByCategory  map[string]int `json:"count_by_category"`
	BookingRequired  int            `json:"booking_required"`
	OpenByWeekday    [7]int         `json:"open_by_weekday"` // index 0 = Sunday
}

// SelectionDecision is the structured output of the Selector port: a
// starting set, ranked backups per starting POI, and rejections with
// reasons.
type SelectionDecision struct {
	StartingPOIs    []string               `json:"starting_pois"`
	BackupPOIs      map[string][]BackupEntry `json:"backup_pois"`
	RejectedPOIs    []RejectedEntry        `json:"rejected_pois"`
	ReasoningSummary string                `json:"reasoning_summary"`
}
