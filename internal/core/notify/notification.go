// Package notify holds the ordered queue of user-facing notifications and
// their expiry timers.
package notify

import (
	"fmt"
	"strings"
	"time"
)

// Category classifies a notification.
type Category string

const (
	CategoryError   Category = "error"
	CategorySuccess Category = "success"
	CategoryWarning Category = "warning"
	CategoryInfo    Category = "info"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryError, CategorySuccess, CategoryWarning, CategoryInfo}

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryError, CategorySuccess, CategoryWarning, CategoryInfo:
		return true
	}
	return false
}

// ParseCategory converts a case-insensitive name into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// Notification is a single queued message. A removed notification is
// discarded, never modified in place.
type Notification struct {
	ID       string        `json:"id"`
	Category Category      `json:"category"`
	Text     string        `json:"text"`
	Sticky   bool          `json:"sticky"`
	Expiry   time.Duration `json:"expiry,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	// ExpiresAt is zero for sticky notifications.
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}
