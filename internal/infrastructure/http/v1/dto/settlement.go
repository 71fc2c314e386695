package dto

import (
	"time"

	"routeledger/internal/core/types"
	"routeledger/internal/domain/settlement"
)

// RunSettlementRequest settles a business date; empty means today.
type RunSettlementRequest struct {
	Date string `json:"date" binding:"omitempty,bizdate"`
}

// DateQuery carries an optional business date.
type DateQuery struct {
	Date string `form:"date" binding:"omitempty,bizdate"`
}

// Day parses the date, defaulting to today.
func (q DateQuery) Day() (time.Time, error) {
	d, err := ParseDate("date", q.Date)
	if err != nil || !d.IsZero() {
		return d, err
	}
	return types.Today(), nil
}

// ArchiveHeader is the list form of an archive, without closings.
type ArchiveHeader struct {
	ID         string             `json:"id"`
	Date       string             `json:"date"`
	Sequence   int                `json:"sequence"`
	ArchivedAt time.Time          `json:"archivedAt"`
	Summary    settlement.Summary `json:"summary"`
}

// FromArchive converts an archive to its list form.
func FromArchive(a *settlement.Archive) ArchiveHeader {
	return ArchiveHeader{
		ID:         a.ID.String(),
		Date:       types.FormatDay(a.Date),
		Sequence:   a.Sequence,
		ArchivedAt: a.ArchivedAt,
		Summary:    a.Summary,
	}
}
