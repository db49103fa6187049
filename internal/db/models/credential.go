package models

import "time"

// Credential is the stored OAuth token payload for one owner. Data is opaque
// to the store and interpreted by the credentials service.
type Credential struct {
	OwnerID   int64     `db:"owner_id" json:"owner_id"`
	Data      string    `db:"data" json:"-"`
	Active    bool      `db:"is_active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
