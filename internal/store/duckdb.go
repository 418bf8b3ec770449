package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yu-fu/smokesearch/internal/db"
	"github.com/yu-fu/smokesearch/internal/models"
)

var duckSchema = []string{
	`CREATE SEQUENCE IF NOT EXISTS smoking_area_seq`,
	`CREATE SEQUENCE IF NOT EXISTS report_seq`,
	`CREATE TABLE IF NOT EXISTS smoking_areas (
		id            VARCHAR PRIMARY KEY,
		latitude      DOUBLE NOT NULL,
		longitude     DOUBLE NOT NULL,
		memo          VARCHAR NOT NULL DEFAULT '',
		created_by_id VARCHAR NOT NULL,
		created_at    TIMESTAMP NOT NULL,
		seq           BIGINT NOT NULL DEFAULT nextval('smoking_area_seq')
	)`,
	`CREATE TABLE IF NOT EXISTS reports (
		id              VARCHAR PRIMARY KEY,
		smoking_area_id VARCHAR NOT NULL,
		reason          VARCHAR NOT NULL,
		comment         VARCHAR NOT NULL DEFAULT '',
		reported_by_id  VARCHAR NOT NULL,
		reported_at     TIMESTAMP NOT NULL,
		seq             BIGINT NOT NULL DEFAULT nextval('report_seq')
	)`,
	`CREATE INDEX IF NOT EXISTS reports_area_idx ON reports (smoking_area_id)`,
}

// DuckDB is the default Store, backed by an embedded DuckDB file.
type DuckDB struct {
	Clock Clock
	db    *sql.DB
}

// OpenDuckDB opens (or creates) the database described by cfg.
func OpenDuckDB(ctx context.Context, cfg db.Config) (*DuckDB, error) {
	conn, err := db.Open(ctx, cfg, duckSchema...)
	if err != nil {
		return nil, err
	}
	return &DuckDB{db: conn}, nil
}

func (d *DuckDB) CreateArea(ctx context.Context, in models.NewArea) (string, error) {
	id := uuid.NewString()
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO smoking_areas (id, latitude, longitude, memo, created_by_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, in.Latitude, in.Longitude, in.Memo, in.CreatedByID, d.Clock.now())
	if err != nil {
		return "", fmt.Errorf("insert smoking area: %w", err)
	}
	return id, nil
}

const areaColumns = `id, latitude, longitude, memo, created_by_id, created_at`

func scanArea(row interface{ Scan(...any) error }) (models.SmokingArea, error) {
	var a models.SmokingArea
	err := row.Scan(&a.ID, &a.Latitude, &a.Longitude, &a.Memo, &a.CreatedByID, &a.CreatedAt)
	a.CreatedAt = a.CreatedAt.UTC()
	return a, err
}

func (d *DuckDB) GetArea(ctx context.Context, id string) (models.SmokingArea, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+areaColumns+` FROM smoking_areas WHERE id = ?`, id)
	a, err := scanArea(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SmokingArea{}, ErrNotFound
	}
	if err != nil {
		return models.SmokingArea{}, fmt.Errorf("get smoking area: %w", err)
	}
	return a, nil
}

func (d *DuckDB) ListAreas(ctx context.Context) ([]models.SmokingArea, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+areaColumns+` FROM smoking_areas ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list smoking areas: %w", err)
	}
	defer rows.Close()

	areas := []models.SmokingArea{}
	for rows.Next() {
		a, err := scanArea(rows)
		if err != nil {
			return nil, fmt.Errorf("scan smoking area: %w", err)
		}
		areas = append(areas, a)
	}
	return areas, rows.Err()
}

func (d *DuckDB) UpdateArea(ctx context.Context, id string, patch models.AreaPatch) error {
	var (
		sets []string
		args []any
	)
	if patch.Coordinates != nil {
		sets = append(sets, "latitude = ?", "longitude = ?")
		args = append(args, patch.Coordinates.Latitude, patch.Coordinates.Longitude)
	}
	if patch.Memo != nil {
		sets = append(sets, "memo = ?")
		args = append(args, strings.TrimSpace(*patch.Memo))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := d.db.ExecContext(ctx,
		`UPDATE smoking_areas SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update smoking area: %w", err)
	}
	return requireAffected(res)
}

func (d *DuckDB) DeleteArea(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM smoking_areas WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete smoking area: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DuckDB) CreateReport(ctx context.Context, in models.NewReport) (string, error) {
	id := uuid.NewString()
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO reports (id, smoking_area_id, reason, comment, reported_by_id, reported_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, in.SmokingAreaID, string(in.Reason), in.Comment, in.ReportedByID, d.Clock.now())
	if err != nil {
		return "", fmt.Errorf("insert report: %w", err)
	}
	return id, nil
}

func (d *DuckDB) ListReportsForArea(ctx context.Context, areaID string) ([]models.Report, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, smoking_area_id, reason, comment, reported_by_id, reported_at
		 FROM reports WHERE smoking_area_id = ?
		 ORDER BY reported_at DESC, seq DESC`, areaID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	reports := []models.Report{}
	for rows.Next() {
		var (
			r      models.Report
			reason string
		)
		if err := rows.Scan(&r.ID, &r.SmokingAreaID, &reason, &r.Comment, &r.ReportedByID, &r.ReportedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		r.Reason = models.ReportReason(reason)
		r.ReportedAt = r.ReportedAt.UTC()
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func (d *DuckDB) Close() error {
	return d.db.Close()
}
