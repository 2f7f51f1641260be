package location

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/onsiteclub/onsite-timekeeper-sub004/internal/db"
	"github.com/onsiteclub/onsite-timekeeper-sub004/internal/shared/geo"
)

const defaultRadiusM = 100

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

func (s *Service) Create(ctx context.Context, input Location) (Location, error) {
	if input.Name == "" {
		return Location{}, errors.New("name required")
	}
	input.ID = uuid.NewString()
	if input.RadiusM <= 0 {
		input.RadiusM = defaultRadiusM
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO locations (id, name, address, lat, lng, radius_m, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at
	`, input.ID, input.Name, input.Address, input.Lat, input.Lng, input.RadiusM, input.CreatedBy)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return Location{}, err
	}
	return input, nil
}

func (s *Service) Update(ctx context.Context, id string, patch Location) (Location, error) {
	loc, err := s.Get(ctx, id)
	if err != nil {
		return Location{}, err
	}
	if patch.Name != "" {
		loc.Name = patch.Name
	}
	if patch.Address != "" {
		loc.Address = patch.Address
	}
	if patch.Lat != 0 {
		loc.Lat = patch.Lat
	}
	if patch.Lng != 0 {
		loc.Lng = patch.Lng
	}
	if patch.RadiusM != 0 {
		loc.RadiusM = patch.RadiusM
	}

	_, err = s.db.Exec(ctx, `
		UPDATE locations
		SET name=$2, address=$3, lat=$4, lng=$5, radius_m=$6
		WHERE id=$1
	`, loc.ID, loc.Name, loc.Address, loc.Lat, loc.Lng, loc.RadiusM)
	if err != nil {
		return Location{}, err
	}
	return loc, nil
}

func (s *Service) Get(ctx context.Context, id string) (Location, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, COALESCE(address,''), lat, lng, radius_m, created_by, created_at
		FROM locations WHERE id=$1
	`, id)
	var loc Location
	if err := row.Scan(&loc.ID, &loc.Name, &loc.Address, &loc.Lat, &loc.Lng, &loc.RadiusM, &loc.CreatedBy, &loc.CreatedAt); err != nil {
		return Location{}, err
	}
	return loc, nil
}

func (s *Service) List(ctx context.Context, createdBy string) ([]Location, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, COALESCE(address,''), lat, lng, radius_m, created_by, created_at
		FROM locations WHERE created_by=$1
		ORDER BY created_at DESC
	`, createdBy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Location
	for rows.Next() {
		var loc Location
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.Address, &loc.Lat, &loc.Lng, &loc.RadiusM, &loc.CreatedBy, &loc.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, loc)
	}
	return results, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM locations WHERE id=$1`, id)
	return err
}

// Resolve returns the registered geofence containing the point, choosing the
// nearest center when geofences overlap. Returns false when no geofence
// contains the point.
func (s *Service) Resolve(ctx context.Context, createdBy string, lat, lng float64) (Location, bool, error) {
	candidates, err := s.List(ctx, createdBy)
	if err != nil {
		return Location{}, false, err
	}

	var best Location
	bestDist := -1.0
	for _, loc := range candidates {
		distM := geo.HaversineKm(lat, lng, loc.Lat, loc.Lng) * 1000
		if distM > loc.RadiusM {
			continue
		}
		if bestDist < 0 || distM < bestDist {
			best = loc
			bestDist = distM
		}
	}
	if bestDist < 0 {
		return Location{}, false, nil
	}
	return best, true, nil
}
