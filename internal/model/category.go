package model

import "time"

// UncategorizedName is the built-in sentinel category every database carries.
const UncategorizedName = "Uncategorized"

// Category represents a budget category. Categories form a tree through
// ParentID and may carry a mapping to the budgeting service's category id.
type Category struct {
	CreatedAt  time.Time
	ParentID   *int
	Name       string
	ExternalID string
	ID         int
	IsActive   bool
}

// IsUncategorized reports whether this is the built-in sentinel category.
func (c *Category) IsUncategorized() bool {
	return c.Name == UncategorizedName
}
