package model

// Artist is a performer. Types lists the roles (comedian, singer...) the
// artist can hold.
type Artist struct {
	ID        uint64   `json:"id"`
	Firstname string   `json:"firstname"`
	Lastname  string   `json:"lastname"`
	Types     []string `json:"types"`
}

// FullName joins first and last name.
func (a Artist) FullName() string {
	if a.Lastname == "" {
		return a.Firstname
	}
	return a.Firstname + " " + a.Lastname
}

// ArtistType links an artist to one of their types. Shows reference
// artists through these links.
type ArtistType struct {
	ID         uint64 `json:"id"`
	ArtistID   uint64 `json:"artistId"`
	ArtistName string `json:"artistName"`
	Type       string `json:"type"`
}
