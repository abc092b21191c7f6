package domain

import "time"

// ExchangeRecord is one persisted turn of conversation. Records are only
// created after a non-empty reply was produced.
type ExchangeRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Channel   string    `json:"channel"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
}
