// Package store is the record store client for smoking areas and reports.
//
// Three backends implement [Store]: an in-memory map, the embedded DuckDB
// database, and MongoDB. All of them assign record ids and server
// timestamps; none of them retries or enforces references between reports
// and areas.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/yu-fu/smokesearch/internal/models"
)

// Collection names, shared by every backend.
const (
	SmokingAreasCollection = "smokingAreas"
	ReportsCollection      = "reports"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the record store contract.
type Store interface {
	// CreateArea stores a new area and returns its assigned id.
	CreateArea(ctx context.Context, in models.NewArea) (string, error)
	GetArea(ctx context.Context, id string) (models.SmokingArea, error)
	// ListAreas returns every area in the backend's natural order.
	ListAreas(ctx context.Context) ([]models.SmokingArea, error)
	UpdateArea(ctx context.Context, id string, patch models.AreaPatch) error
	DeleteArea(ctx context.Context, id string) error

	CreateReport(ctx context.Context, in models.NewReport) (string, error)
	// ListReportsForArea returns the reports for one area, newest first.
	ListReportsForArea(ctx context.Context, areaID string) ([]models.Report, error)

	Close() error
}

// Clock supplies server timestamps.
type Clock func() time.Time

// now returns the current time at the precision every backend can store.
func (c Clock) now() time.Time {
	if c == nil {
		c = time.Now
	}
	return c().UTC().Truncate(time.Millisecond)
}
