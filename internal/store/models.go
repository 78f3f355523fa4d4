package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderRecord is one order submission or modification.
type OrderRecord struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	SessionID string `gorm:"index"`
	OrderID   int64  `gorm:"index"`
	ParentID  int64
	Symbol    string
	Action    string
	OrderType string
	Quantity  string
	LimitPx   string
	AuxPx     string
	TIF       string
	OCAGroup  string
	Account   string
	CreatedAt time.Time
}

// StatusRecord is one order status transition as reported by the gateway.
type StatusRecord struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	SessionID string `gorm:"index"`
	OrderID   int64  `gorm:"index"`
	Status    string
	Filled    string
	Remaining string
	AvgPx     string
	CreatedAt time.Time
}

// ExecutionRecord is one execution report.
type ExecutionRecord struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	SessionID string `gorm:"index"`
	OrderID   int64  `gorm:"index"`
	ExecID    string `gorm:"index"`
	Side      string
	Shares    string
	Price     string
	CumQty    string
	ExecTime  time.Time
	CreatedAt time.Time
}

func (r *OrderRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

func (r *StatusRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

func (r *ExecutionRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
