package dto

// AuthClaims is the verified identity carried by a session token.
type AuthClaims struct {
	UserID string `json:"userId"`
	Mobile string `json:"mobile"`
}
