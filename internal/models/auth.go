package models

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Agency is the directory's view of a tenant.
type Agency struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
