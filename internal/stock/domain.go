package stock

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Direction enumerates movement directions.
type Direction string

const (
	// DirectionIn represents an inbound movement (reception).
	DirectionIn Direction = "IN"
	// DirectionOut represents an outbound movement (delivery, sale).
	DirectionOut Direction = "OUT"
)

// MovementKey is the natural key of a movement: at most one movement
// may exist per (source document type, source document, product) at any
// time. Conversions rewrite the key in place rather than inserting a
// duplicate.
type MovementKey struct {
	SourceType string
	SourceID   int64
	ProductID  int64
}

func (k MovementKey) String() string {
	return fmt.Sprintf("%s:%d:%d", k.SourceType, k.SourceID, k.ProductID)
}

// Movement is one inventory delta tied to exactly one source document
// line.
type Movement struct {
	ID        int64
	Key       MovementKey
	Quantity  decimal.Decimal
	Direction Direction
	MovedAt   time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Anomaly reports a reconciliation inconsistency. Anomalies are logged
// and surfaced as warnings; they never abort the enclosing document
// operation.
type Anomaly struct {
	Key    MovementKey `json:"key"`
	Reason string      `json:"reason"`
}

func (a Anomaly) String() string {
	return fmt.Sprintf("stock anomaly on %s: %s", a.Key, a.Reason)
}

// ErrNegativeQuantity indicates a movement quantity below zero.
// Reception and delivery quantities must be >= 0; monetary credit lines
// never reach the stock layer.
var ErrNegativeQuantity = errors.New("stock: quantity must be >= 0")

// ErrInvalidDirection indicates an unknown movement direction.
var ErrInvalidDirection = errors.New("stock: invalid direction")

// ErrMovementExists indicates an insert raced with another movement on
// the same key.
var ErrMovementExists = errors.New("stock: movement already exists for key")
