package models

// Organization is the read-only tenant view this service needs.
type Organization struct {
	ID                 string `json:"id" db:"id"`
	Slug               string `json:"slug" db:"slug"`
	Name               string `json:"name" db:"name"`
	ConnectedAccountID string `json:"connected_account_id,omitempty" db:"connected_account_id"`
}

// AccountStatus is the gateway-side state of a connected account.
type AccountStatus struct {
	AccountID        string `json:"account_id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

// Ready reports whether the account can accept charges.
func (s AccountStatus) Ready() bool {
	return s.ChargesEnabled && s.DetailsSubmitted
}
