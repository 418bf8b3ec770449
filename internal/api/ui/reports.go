package ui

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/yu-fu/smokesearch/internal/forms"
	"github.com/yu-fu/smokesearch/internal/humastar"
	"github.com/yu-fu/smokesearch/internal/models"
)

// ReportPanelData is the data of the "report-panel" fragment.
type ReportPanelData struct {
	Locale  string
	Area    models.SmokingArea
	Reasons []models.ReportReason
}

// ReportItemData is the data of the "report-item" fragment.
type ReportItemData struct {
	Locale     string
	Reason     models.ReportReason
	Comment    string
	ReportedAt string
	When       string
}

func (h *Handler) renderReports(r *request, areaID string) string {
	reports := h.Reports.ListForArea(r.ctx, areaID)
	items := make([]any, len(reports))
	for i, rep := range reports {
		items[i] = ReportItemData{
			Locale:     r.locale,
			Reason:     rep.Reason,
			Comment:    rep.Comment,
			ReportedAt: rep.ReportedAt.Format(time.RFC3339),
			When:       rep.ReportedAt.Local().Format("2006/01/02 15:04"),
		}
	}
	return h.RenderList("report-item", items, humastar.Empty{Title: r.t(h, "map.no_reports")})
}

// ReportOpen shows the report dialog for the selected area.
func (h *Handler) ReportOpen(ctx context.Context, in *Input) (*huma.StreamResponse, error) {
	r, err := h.decode(ctx, in)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(sse humastar.SSE) {
		area, err := h.Areas.Get(r.ctx, r.sig.Report.AreaID)
		if err != nil {
			sse.Error(r.t(h, "error.data_fetch_failed"))
			return
		}
		panel, err := h.Renderer.Render("report-panel", ReportPanelData{
			Locale:  r.locale,
			Area:    area,
			Reasons: models.ReportReasons,
		})
		if err != nil {
			log.Error().Err(err).Msg("ui: render report panel")
			sse.Error(r.t(h, "error.operation_failed"))
			return
		}
		sse.Patch(panel, "#report-panel")
		sse.Patch(h.renderReports(r, area.ID), "#report-list")
		sse.Signals(map[string]any{
			"report": ReportSignals{Open: true, AreaID: area.ID},
			"error":  "",
		})
	}), nil
}

// ReportSubmit files a report against the open area.
func (h *Handler) ReportSubmit(ctx context.Context, in *Input) (*huma.StreamResponse, error) {
	r, err := h.decode(ctx, in)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(sse humastar.SSE) {
		uid := h.userID(r.ctx, r.cookies.Session)
		if uid == "" {
			sse.Error(r.t(h, "auth.login_required"))
			return
		}

		form := forms.Report{Reason: r.sig.Report.Reason, Comment: r.sig.Report.Comment}
		errs, err := forms.Submit(form, func() error {
			report, err := models.NewReportInput(r.sig.Report.AreaID, form.Reason, form.Comment, uid)
			if err != nil {
				return err
			}
			_, err = h.Reports.Submit(r.ctx, report)
			return err
		})
		switch {
		case !errs.OK():
			sse.Error(r.t(h, errs.First()))
		case err != nil:
			sse.Error(r.t(h, "map.report_error"))
		default:
			sse.Success(r.t(h, "map.report_success"))
			sse.Signals(map[string]any{"report": ReportSignals{AreaID: r.sig.Report.AreaID}})
		}
	}), nil
}
