package domain

import "time"

// APIToken is the server-side record of an issued ingestion token. The raw
// token string is never stored; only its digest.
type APIToken struct {
	ID           string
	RepositoryID string
	Digest       string
	CreatedAt    time.Time
	RevokedAt    *time.Time
}

func (t *APIToken) IsRevoked() bool {
	return t != nil && t.RevokedAt != nil
}
