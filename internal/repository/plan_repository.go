package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/agency-booking/internal/model"
)

// PlanRepo reads the 'plans' table.  Plans are managed outside this service.
type PlanRepo struct{ DB *sql.DB }

func NewPlanRepo(db *sql.DB) *PlanRepo { return &PlanRepo{DB: db} }

func (r *PlanRepo) GetByID(ctx context.Context, id uint64) (model.Plan, error) {
	var p model.Plan
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,name,display_name,max_vehicles,max_operators,max_trips_per_period FROM plans WHERE id=? LIMIT 1",
		id).Scan(&p.ID, &p.Name, &p.DisplayName, &p.MaxVehicles, &p.MaxOperators, &p.MaxTripsPerPeriod)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Plan{}, model.ErrPlanNotFound
		}
		return model.Plan{}, err
	}
	return p, nil
}

// List returns all plans ordered by id.
func (r *PlanRepo) List(ctx context.Context) ([]model.Plan, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,name,display_name,max_vehicles,max_operators,max_trips_per_period FROM plans ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Plan
	for rows.Next() {
		var p model.Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.DisplayName, &p.MaxVehicles, &p.MaxOperators, &p.MaxTripsPerPeriod); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
