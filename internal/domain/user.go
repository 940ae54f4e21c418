package domain

// UserContext identifies the farcaster user performing a dashboard action.
// Mutations are refused when no identity is available.
type UserContext struct {
	FID      int64  `json:"fid"`
	Username string `json:"username,omitempty"`
}

// Valid reports whether the context carries a usable identity.
func (u UserContext) Valid() bool {
	return u.FID > 0
}
