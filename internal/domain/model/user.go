package model

import "time"

// User mirrors the identity provider's account row. Rows are written by the
// auth sync, not by this service; we only ever read them.
type User struct {
	ID          string
	Email       string
	DisplayName string
	CreatedAt   time.Time
}
