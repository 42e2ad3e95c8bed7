package types

import "time"

// BaseModel carries the audit columns shared by every persisted row in this
// core. Multi-tenancy is out of scope, so there is no tenant/environment
// column here.
type BaseModel struct {
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
