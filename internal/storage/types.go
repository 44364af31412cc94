package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage. An empty or "none" Driver disables it.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPriceDrop   = "price_drop"
)

// AuditEntry is one journal line. Prices are minor units; zero when not
// relevant to the action.
type AuditEntry struct {
	At           time.Time `json:"at" db:"at"`
	SubscriberID int64     `json:"subscriber_id" db:"subscriber_id"`
	Action       string    `json:"action" db:"action"`
	ItemID       string    `json:"item_id" db:"item_id"`
	ItemName     string    `json:"item_name,omitempty" db:"item_name"`
	OldPrice     int64     `json:"old_price,omitempty" db:"old_price"`
	NewPrice     int64     `json:"new_price,omitempty" db:"new_price"`
	Meta         string    `json:"meta,omitempty" db:"meta"`
}
