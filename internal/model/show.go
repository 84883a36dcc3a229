package model

import "time"

// Moderation states of a show. Only confirmed shows are listed publicly.
const (
	ShowPending   = "A_CONFIRMER"
	ShowConfirmed = "CONFIRME"
)

// UnknownLocation is displayed when neither a representation nor its show
// has a venue.
const UnknownLocation = "Lieu non défini"

// Show is a bookable event. Representations, Reviews and Artists are only
// filled by the detail queries; AverageRating and ReviewCount consider
// validated reviews only.
type Show struct {
	ID                  uint64           `json:"id"`
	Slug                string           `json:"slug"`
	Title               string           `json:"title"`
	Description         string           `json:"description"`
	PosterURL           string           `json:"posterUrl"`
	Bookable            bool             `json:"bookable"`
	Status              string           `json:"status"`
	LocationID          *uint64          `json:"locationId,omitempty"`
	LocationDesignation string           `json:"locationDesignation"`
	ProducerID          *uint64          `json:"producerId,omitempty"`
	AverageRating       float64          `json:"averageRating"`
	ReviewCount         int              `json:"reviewCount"`
	ArtistTypeIDs       []uint64         `json:"artistTypeIds"`
	Artists             []Artist         `json:"artists"`
	Representations     []Representation `json:"representations"`
	Reviews             []Review         `json:"reviews"`
	CreatedAt           time.Time        `json:"createdAt"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

// IsConfirmed reports whether the show passed moderation.
func (s Show) IsConfirmed() bool { return s.Status == ShowConfirmed }

// OwnedBy reports whether userID produced the show.
func (s Show) OwnedBy(userID uint64) bool {
	return s.ProducerID != nil && *s.ProducerID == userID
}

// EditableBy reports whether a caller may change the show. Admins may edit
// any show, other editors only the ones they produced.
func (s Show) EditableBy(userID uint64, roles []string) bool {
	return HasAnyRole(roles, RoleAdmin) || s.OwnedBy(userID)
}

// VisibleTo reports whether the show can be read by the caller. A zero
// userID is an anonymous visitor.
func (s Show) VisibleTo(userID uint64, roles []string) bool {
	if s.IsConfirmed() {
		return true
	}
	return userID != 0 && s.EditableBy(userID, roles)
}

// ApplyReviews keeps the validated reviews and recomputes the rating.
func (s *Show) ApplyReviews(reviews []Review) {
	kept := make([]Review, 0, len(reviews))
	total := 0
	for _, r := range reviews {
		if !r.Validated {
			continue
		}
		kept = append(kept, r)
		total += int(r.Stars)
	}
	s.Reviews = kept
	s.ReviewCount = len(kept)
	s.AverageRating = 0
	if len(kept) > 0 {
		s.AverageRating = float64(total) / float64(len(kept))
	}
}
