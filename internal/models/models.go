// Package models holds the smoking-area domain records and their validating constructors.
package models

import (
	"math"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/yu-fu/smokesearch/internal/apperr"
)

// Coordinates is a latitude/longitude pair. Both halves are always set
// together; there is no partial location.
type Coordinates struct {
	Latitude  float64 `json:"latitude" bson:"latitude" doc:"Latitude in degrees" example:"35.6762"`
	Longitude float64 `json:"longitude" bson:"longitude" doc:"Longitude in degrees" example:"139.6503"`
}

// Point returns the coordinates as an orb point (lng, lat).
func (c Coordinates) Point() orb.Point {
	return orb.Point{c.Longitude, c.Latitude}
}

// FromPoint converts an orb point back to coordinates.
func FromPoint(p orb.Point) Coordinates {
	return Coordinates{Latitude: p.Lat(), Longitude: p.Lon()}
}

// Valid reports whether both halves are finite numbers. Range is not
// enforced: whatever the map widget reports is accepted.
func (c Coordinates) Valid() bool {
	return finite(c.Latitude) && finite(c.Longitude)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// SmokingArea is a user-submitted smoking spot.
type SmokingArea struct {
	ID          string    `json:"id" doc:"Store-assigned identifier"`
	Latitude    float64   `json:"latitude" doc:"Latitude in degrees" example:"35.6762"`
	Longitude   float64   `json:"longitude" doc:"Longitude in degrees" example:"139.6503"`
	Memo        string    `json:"memo,omitempty" doc:"Free-text note" example:"屋外、灰皿あり"`
	CreatedByID string    `json:"createdById" doc:"User who created the entry"`
	CreatedAt   time.Time `json:"createdAt" doc:"Server-assigned creation time"`
}

// Coordinates returns the area location.
func (a SmokingArea) Coordinates() Coordinates {
	return Coordinates{Latitude: a.Latitude, Longitude: a.Longitude}
}

// NewArea is the validated input for creating a SmokingArea.
type NewArea struct {
	Coordinates
	Memo        string
	CreatedByID string
}

// NewAreaInput validates raw UI input before it reaches the store.
func NewAreaInput(c Coordinates, memo, createdByID string) (NewArea, error) {
	if !c.Valid() {
		return NewArea{}, apperr.Validation("coordinates must be finite numbers")
	}
	createdByID = strings.TrimSpace(createdByID)
	if createdByID == "" {
		return NewArea{}, apperr.Validation("creator id is required")
	}
	return NewArea{
		Coordinates: c,
		Memo:        strings.TrimSpace(memo),
		CreatedByID: createdByID,
	}, nil
}

// AreaPatch is a partial update. Coordinates are replaced as a pair.
type AreaPatch struct {
	Coordinates *Coordinates
	Memo        *string
}

// Validate checks the patch before it is sent to the store.
func (p AreaPatch) Validate() error {
	if p.Coordinates == nil && p.Memo == nil {
		return apperr.Validation("nothing to update")
	}
	if p.Coordinates != nil && !p.Coordinates.Valid() {
		return apperr.Validation("coordinates must be finite numbers")
	}
	return nil
}

// Apply returns a copy of a with the patch applied.
func (p AreaPatch) Apply(a SmokingArea) SmokingArea {
	if p.Coordinates != nil {
		a.Latitude = p.Coordinates.Latitude
		a.Longitude = p.Coordinates.Longitude
	}
	if p.Memo != nil {
		a.Memo = strings.TrimSpace(*p.Memo)
	}
	return a
}

// ReportReason is why a user reports a smoking area.
type ReportReason string

const (
	ReasonClosed              ReportReason = "closed"
	ReasonRelocated           ReportReason = "relocated"
	ReasonNoCigarettesAllowed ReportReason = "no-cigarettes-allowed"
	ReasonOther               ReportReason = "other"
)

// ReportReasons lists every reason in display order.
var ReportReasons = []ReportReason{
	ReasonClosed,
	ReasonRelocated,
	ReasonNoCigarettesAllowed,
	ReasonOther,
}

// ParseReportReason returns the reason for s or a validation error.
func ParseReportReason(s string) (ReportReason, error) {
	for _, r := range ReportReasons {
		if string(r) == s {
			return r, nil
		}
	}
	return "", apperr.Validation("unknown report reason: " + s)
}

// Report flags a problem with a smoking area.
type Report struct {
	ID            string       `json:"id" doc:"Store-assigned identifier"`
	SmokingAreaID string       `json:"smokingAreaId" doc:"Reported smoking area"`
	Reason        ReportReason `json:"reason" enum:"closed,relocated,no-cigarettes-allowed,other" doc:"Report reason"`
	Comment       string       `json:"comment,omitempty" doc:"Optional details"`
	ReportedByID  string       `json:"reportedById" doc:"Reporting user"`
	ReportedAt    time.Time    `json:"reportedAt" doc:"Server-assigned report time"`
}

// NewReport is the validated input for creating a Report.
type NewReport struct {
	SmokingAreaID string
	Reason        ReportReason
	Comment       string
	ReportedByID  string
}

// NewReportInput validates raw UI input before it reaches the store.
func NewReportInput(areaID, reason, comment, reportedByID string) (NewReport, error) {
	areaID = strings.TrimSpace(areaID)
	if areaID == "" {
		return NewReport{}, apperr.Validation("smoking area id is required")
	}
	r, err := ParseReportReason(reason)
	if err != nil {
		return NewReport{}, err
	}
	reportedByID = strings.TrimSpace(reportedByID)
	if reportedByID == "" {
		return NewReport{}, apperr.Validation("reporter id is required")
	}
	return NewReport{
		SmokingAreaID: areaID,
		Reason:        r,
		Comment:       strings.TrimSpace(comment),
		ReportedByID:  reportedByID,
	}, nil
}
