package repository

import (
	"context"
	"strings"
	"time"

	"github.com/iliyamo/smartbooking/internal/model"
)

// ShowSearchQuery filters the public catalog. Empty fields do not filter.
// Start and End bound representation dates: Start <= when < End.
type ShowSearchQuery struct {
	Title    string
	Location string
	Start    *time.Time
	End      *time.Time
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likeContains builds a case-insensitive substring pattern.
func likeContains(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(s))) + "%"
}

// Search returns confirmed shows matching q, ordered by title.
func (r *ShowRepo) Search(ctx context.Context, q ShowSearchQuery) ([]model.Show, error) {
	where := []string{"s.status = ?"}
	args := []any{model.ShowConfirmed}

	if strings.TrimSpace(q.Title) != "" {
		where = append(where, "LOWER(s.title) LIKE ?")
		args = append(args, likeContains(q.Title))
	}
	if strings.TrimSpace(q.Location) != "" {
		pat := likeContains(q.Location)
		where = append(where, `(LOWER(l.designation) LIKE ? OR EXISTS (
			SELECT 1 FROM representations rl JOIN locations l2 ON l2.id = rl.location_id
			 WHERE rl.show_id = s.id AND LOWER(l2.designation) LIKE ?))`)
		args = append(args, pat, pat)
	}
	if q.Start != nil || q.End != nil {
		cond := []string{"rd.show_id = s.id"}
		if q.Start != nil {
			cond = append(cond, "rd.starts_at >= ?")
			args = append(args, q.Start.UTC())
		}
		if q.End != nil {
			cond = append(cond, "rd.starts_at < ?")
			args = append(args, q.End.UTC())
		}
		where = append(where, "EXISTS (SELECT 1 FROM representations rd WHERE "+strings.Join(cond, " AND ")+")")
	}

	return r.listDetailed(ctx, "WHERE "+strings.Join(where, " AND ")+" ORDER BY s.title", args...)
}
