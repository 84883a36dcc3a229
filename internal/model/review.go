package model

import "time"

// Review is a member's rating of a show. It is hidden from the public
// until an admin validates it.
type Review struct {
	ID          uint64    `json:"id"`
	UserID      uint64    `json:"userId"`
	ShowID      uint64    `json:"showId"`
	ShowTitle   string    `json:"showTitle,omitempty"`
	AuthorLogin string    `json:"authorLogin"`
	Comment     string    `json:"comment"`
	Stars       uint8     `json:"stars"`
	Validated   bool      `json:"validated"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ReviewStats summarises moderation state for the admin dashboard.
type ReviewStats struct {
	TotalReviews     int64   `json:"totalReviews"`
	PendingReviews   int64   `json:"pendingReviews"`
	ValidatedReviews int64   `json:"validatedReviews"`
	GlobalAverage    float64 `json:"globalAverage"`
}

// AdminStats feeds the admin dashboard.
type AdminStats struct {
	TotalUsers        int64       `json:"totalUsers"`
	TotalShows        int64       `json:"totalShows"`
	PendingShows      int64       `json:"pendingShows"`
	TotalReservations int64       `json:"totalReservations"`
	TotalLocations    int64       `json:"totalLocations"`
	TotalArtists      int64       `json:"totalArtists"`
	ReviewStats       ReviewStats `json:"reviewStats"`
}
