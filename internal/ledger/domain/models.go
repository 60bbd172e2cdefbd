// Package domain contains the per-user processing-unit balance and its
// append-only audit history.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	estimatordomain "github.com/geocubed/cubehub/internal/estimator/domain"
)

// Ledger operations recorded in history.
const (
	OpAdd      = "add"
	OpSubtract = "subtract"
	OpOverride = "override"
)

// PunitsRequest is the payload of every ledger mutation; only
// Punits.TotalCount drives the balance change, the rest is kept for audit.
type PunitsRequest struct {
	Punits estimatordomain.CostEstimate `json:"punits"`
}

// HistoryEntry records one accepted mutation. History is prepended, never
// edited or removed.
type HistoryEntry struct {
	ID        snowflake.ID  `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Op        string        `json:"op"`
	Payload   PunitsRequest `json:"payload"`
}

// LedgerRecord is the stored per-user record. Count never goes negative.
type LedgerRecord struct {
	Count   int64          `json:"count"`
	History []HistoryEntry `json:"history,omitempty"`
}
