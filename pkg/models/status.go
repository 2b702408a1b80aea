package models

// TypeCounts breaks correlation totals down by tracking type.
type TypeCounts struct {
	RFID   int `json:"rfid"`
	Bulk   int `json:"bulk"`
	Hybrid int `json:"hybrid"`
}

// MigrationStats summarizes how far the two source systems have converged.
type MigrationStats struct {
	LinkedBothSides int     `json:"linked_both_sides"`
	RFIDOnly        int     `json:"rfid_only"`
	POSOnly         int     `json:"pos_only"`
	PercentLinked   float64 `json:"percent_linked"`
}

// QualityStats summarizes open data-quality findings.
type QualityStats struct {
	OpenIssues    int `json:"open_issues"`
	AffectedItems int `json:"affected_items"`
}

// StatusReport is the aggregate correlation dashboard snapshot.
type StatusReport struct {
	Total         int            `json:"total"`
	RFIDItems     int            `json:"rfid_items"`
	POSItems      int            `json:"pos_items"`
	AvgConfidence float64        `json:"avg_confidence"`
	ByType        TypeCounts     `json:"by_type"`
	Migration     MigrationStats `json:"migration"`
	Quality       QualityStats   `json:"quality"`
}

// ItemMapping is a validated pointer from a correlation to an external system
// record. Validated mappings raise the confidence score.
type ItemMapping struct {
	ID             string `json:"id"`
	CorrelationID  string `json:"correlation_id"`
	ExternalSystem string `json:"external_system"`
	ExternalRef    string `json:"external_ref"`
	Validated      bool   `json:"validated"`
}
