package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/yu-fu/smokesearch/internal/apperr"
	"github.com/yu-fu/smokesearch/internal/models"
	"github.com/yu-fu/smokesearch/internal/store"
)

// ReportService manages reports against smoking areas.
type ReportService struct {
	store store.Store
	areas *AreaService
}

// NewReportService creates a new report service.
func NewReportService(s store.Store, areas *AreaService) *ReportService {
	return &ReportService{store: s, areas: areas}
}

// Submit stores a report for an existing area and returns its id.
func (s *ReportService) Submit(ctx context.Context, in models.NewReport) (string, error) {
	if _, err := s.areas.Get(ctx, in.SmokingAreaID); err != nil {
		return "", err
	}
	id, err := s.store.CreateReport(ctx, in)
	if err != nil {
		log.Error().Err(err).Str("op", "create-report").Str("area", in.SmokingAreaID).Msg("store write failed")
		return "", apperr.Internal(operationFailed, err)
	}
	log.Info().
		Str("id", id).
		Str("area", in.SmokingAreaID).
		Str("reason", string(in.Reason)).
		Msg("report submitted")
	return id, nil
}

// ListForArea returns the reports for one area, newest first. A failed
// read is logged and yields an empty list.
func (s *ReportService) ListForArea(ctx context.Context, areaID string) []models.Report {
	reports, err := s.store.ListReportsForArea(ctx, areaID)
	if err != nil {
		log.Error().Err(err).Str("op", "list-reports").Str("area", areaID).Msg("store read failed, returning empty list")
		return []models.Report{}
	}
	return reports
}
