package model

// Locality is a postal code and town name shared by venues.
type Locality struct {
	ID         uint64 `json:"id"`
	PostalCode string `json:"postalCode"`
	Locality   string `json:"locality"`
}

// Location is a venue. The locality fields are flattened from the
// localities table.
type Location struct {
	ID           uint64 `json:"id"`
	Slug         string `json:"slug"`
	Designation  string `json:"designation"`
	Address      string `json:"address"`
	Website      string `json:"website"`
	Phone        string `json:"phone"`
	LocalityID   uint64 `json:"localityId"`
	LocalityName string `json:"localityName"`
	PostalCode   string `json:"postalCode"`
}
