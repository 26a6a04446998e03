package db

import "database/sql"

type Account struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    int64
	UpdatedAt    int64
}

type SplitToken struct {
	Selector     string
	OwnerID      string
	Purpose      string
	VerifierHash string
	ExpiresAt    sql.NullInt64
	Metadata     string
	CreatedAt    int64
}

type Plan struct {
	ID           string
	Name         string
	Constraints  string
	Capabilities string
	CreatedAt    int64
	UpdatedAt    int64
}
