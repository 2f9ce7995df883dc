package domain

import "time"

// Contact is the row shape returned by a segment preview.
type Contact struct {
	ID        int64     `json:"id" db:"id"`
	TenantID  int64     `json:"tenant_id" db:"tenant_id"`
	Email     string    `json:"email" db:"email"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	Source    string    `json:"source" db:"source"`
	Country   string    `json:"country" db:"country"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SegmentPreview is a sample of contacts matched by a segment plus the
// repository's total.
type SegmentPreview struct {
	Contacts []Contact `json:"data"`
	Total    int       `json:"total"`
}
