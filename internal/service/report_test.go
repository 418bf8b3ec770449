package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yu-fu/smokesearch/internal/apperr"
	"github.com/yu-fu/smokesearch/internal/models"
	"github.com/yu-fu/smokesearch/internal/store"
)

func TestReportServiceSubmit(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	mem.Clock = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Minute)
	}
	areas := NewAreaService(mem, nil)
	reports := NewReportService(mem, areas)

	areaID, err := areas.Add(ctx, newArea(t, 35, 139, "", "uid-1"))
	require.NoError(t, err)

	first, err := models.NewReportInput(areaID, "closed", "", "uid-2")
	require.NoError(t, err)
	_, err = reports.Submit(ctx, first)
	require.NoError(t, err)

	second, err := models.NewReportInput(areaID, "other", "  ベンチが撤去されました ", "uid-3")
	require.NoError(t, err)
	_, err = reports.Submit(ctx, second)
	require.NoError(t, err)

	got := reports.ListForArea(ctx, areaID)
	require.Len(t, got, 2)
	assert.Equal(t, models.ReasonOther, got[0].Reason)
	assert.Equal(t, "ベンチが撤去されました", got[0].Comment)
	assert.Equal(t, models.ReasonClosed, got[1].Reason)
	assert.True(t, got[0].ReportedAt.After(got[1].ReportedAt))
}

func TestReportServiceUnknownArea(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	reports := NewReportService(mem, NewAreaService(mem, nil))

	in, err := models.NewReportInput("missing", "relocated", "", "uid-2")
	require.NoError(t, err)
	_, err = reports.Submit(ctx, in)
	assert.True(t, apperr.Is(err, apperr.TypeNotFound))
	assert.Empty(t, reports.ListForArea(ctx, "missing"))
}

func TestReportServiceDegradesOnStoreFailure(t *testing.T) {
	st := new(mockStore)
	st.On("ListReportsForArea", mock.Anything, "a1").Return(nil, errBackend)
	reports := NewReportService(st, NewAreaService(st, nil))

	got := reports.ListForArea(context.Background(), "a1")
	assert.NotNil(t, got)
	assert.Empty(t, got)
	st.AssertExpectations(t)
}

func TestReportServiceWriteFailure(t *testing.T) {
	ctx := context.Background()
	st := new(mockStore)
	st.On("GetArea", mock.Anything, "a1").Return(models.SmokingArea{ID: "a1"}, nil)
	st.On("CreateReport", mock.Anything, mock.Anything).Return("", errBackend)
	reports := NewReportService(st, NewAreaService(st, nil))

	in, err := models.NewReportInput("a1", "closed", "", "uid-2")
	require.NoError(t, err)
	_, err = reports.Submit(ctx, in)
	assert.True(t, apperr.Is(err, apperr.TypeInternal))
	st.AssertExpectations(t)
}

func TestReportServiceMissingAreaSkipsWrite(t *testing.T) {
	st := new(mockStore)
	st.On("GetArea", mock.Anything, "gone").Return(nil, store.ErrNotFound)
	reports := NewReportService(st, NewAreaService(st, nil))

	in, err := models.NewReportInput("gone", "other", "", "uid-2")
	require.NoError(t, err)
	_, err = reports.Submit(context.Background(), in)
	assert.True(t, apperr.Is(err, apperr.TypeNotFound))
	st.AssertNotCalled(t, "CreateReport", mock.Anything, mock.Anything)
}
