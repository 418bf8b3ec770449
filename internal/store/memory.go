package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/yu-fu/smokesearch/internal/models"
)

// Memory is a process-local Store. Records are lost on restart.
type Memory struct {
	Clock Clock

	mu        sync.RWMutex
	areas     map[string]models.SmokingArea
	areaOrder []string
	reports   []memReport
	seq       int64
}

type memReport struct {
	models.Report
	seq int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{areas: make(map[string]models.SmokingArea)}
}

func (m *Memory) CreateArea(ctx context.Context, in models.NewArea) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.areas[id] = models.SmokingArea{
		ID:          id,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Memo:        in.Memo,
		CreatedByID: in.CreatedByID,
		CreatedAt:   m.Clock.now(),
	}
	m.areaOrder = append(m.areaOrder, id)
	return id, nil
}

func (m *Memory) GetArea(ctx context.Context, id string) (models.SmokingArea, error) {
	if err := ctx.Err(); err != nil {
		return models.SmokingArea{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.areas[id]
	if !ok {
		return models.SmokingArea{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) ListAreas(ctx context.Context) ([]models.SmokingArea, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.SmokingArea, 0, len(m.areaOrder))
	for _, id := range m.areaOrder {
		out = append(out, m.areas[id])
	}
	return out, nil
}

func (m *Memory) UpdateArea(ctx context.Context, id string, patch models.AreaPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.areas[id]
	if !ok {
		return ErrNotFound
	}
	m.areas[id] = patch.Apply(a)
	return nil
}

func (m *Memory) DeleteArea(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.areas[id]; !ok {
		return ErrNotFound
	}
	delete(m.areas, id)
	for i, v := range m.areaOrder {
		if v == id {
			m.areaOrder = append(m.areaOrder[:i], m.areaOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) CreateReport(ctx context.Context, in models.NewReport) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	id := uuid.NewString()
	m.reports = append(m.reports, memReport{
		Report: models.Report{
			ID:            id,
			SmokingAreaID: in.SmokingAreaID,
			Reason:        in.Reason,
			Comment:       in.Comment,
			ReportedByID:  in.ReportedByID,
			ReportedAt:    m.Clock.now(),
		},
		seq: m.seq,
	})
	return id, nil
}

func (m *Memory) ListReportsForArea(ctx context.Context, areaID string) ([]models.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	matched := make([]memReport, 0)
	for _, r := range m.reports {
		if r.SmokingAreaID == areaID {
			matched = append(matched, r)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].ReportedAt.Equal(matched[j].ReportedAt) {
			return matched[i].ReportedAt.After(matched[j].ReportedAt)
		}
		return matched[i].seq > matched[j].seq
	})

	out := make([]models.Report, len(matched))
	for i, r := range matched {
		out[i] = r.Report
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
