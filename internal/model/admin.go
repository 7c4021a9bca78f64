package model

import "time"

// AdminOwnerID is the reserved backup-code owner id for the out-of-band
// administrative identity. Admin recovery codes share the backup_codes table
// with end-user codes under this owner.
const AdminOwnerID = "admin"

// AdminSecurityConfig is the singleton record for the out-of-band
// administrative identity, independent of tenant users.
type AdminSecurityConfig struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	TOTPSecret   string    `json:"-"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
