package store

import (
	"context"
	"fmt"

	"chancai/internal/types"
)

// InsertInforme archives one generated report. Reports from anonymous
// visitors carry no user id. The queue delivers at least once, so a
// redelivered event is a no-op.
func (s *Store) InsertInforme(ctx context.Context, ev types.ReportGeneratedEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO informe (id, user_id, imo, vessel_name, reporte, lat, lng, generated_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, ev.ReportID, ev.UserID, ev.IMO, ev.VesselName, ev.ReportText, ev.Lat, ev.Lng,
		ev.GeneratedAt.UTC(), ev.DurationMS)
	if err != nil {
		return fmt.Errorf("insert informe %s: %w", ev.ReportID, err)
	}
	return nil
}

// ListInformesByUser returns the caller's archived reports, newest first.
func (s *Store) ListInformesByUser(ctx context.Context, userID int, limit int) ([]types.InformeRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	records := []types.InformeRecord{}
	err := s.db.SelectContext(ctx, &records, `
		SELECT id, user_id, imo, vessel_name, reporte, lat, lng, generated_at, duration_ms
		FROM informe
		WHERE user_id = $1
		ORDER BY generated_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}

	for i := range records {
		if records[i].Lat != nil && records[i].Lng != nil {
			records[i].Coordenadas = &[2]float64{*records[i].Lat, *records[i].Lng}
		}
	}
	return records, nil
}

func (s *Store) CountInformes(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM informe`); err != nil {
		return 0, err
	}
	return count, nil
}
