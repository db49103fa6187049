package models

import "time"

// QuotaUsage is the API quota spent on one day for one operation.
type QuotaUsage struct {
	Date      time.Time `db:"date" json:"date"`
	Operation string    `db:"operation" json:"operation"`
	QuotaUsed int       `db:"quota_used" json:"quota_used"`
	Calls     int       `db:"calls" json:"calls"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// QuotaInfo summarizes today's usage across operations.
type QuotaInfo struct {
	QuotaUsed       int `json:"quota_used"`
	QuotaLimit      int `json:"quota_limit"`
	QuotaRemaining  int `json:"quota_remaining"`
	OperationsCount int `json:"operations_count"`
}
