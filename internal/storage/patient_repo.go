package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"labflow/internal/models"
)

type PatientRepo struct {
	db *DB
}

func NewPatientRepo(db *DB) *PatientRepo {
	return &PatientRepo{db: db}
}

const patientColumns = `id::text, user_id, name, COALESCE(age,''), COALESCE(gender,''), COALESCE(contact,''), COALESCE(address,''), created_at`

func scanPatient(row pgx.Row) (models.Patient, error) {
	var p models.Patient
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Age, &p.Gender, &p.Contact, &p.Address, &p.CreatedAt)
	return p, err
}

// FindPatient returns nil when no patient with that exact name exists for the user.
func (r *PatientRepo) FindPatient(ctx context.Context, userID, name string) (*models.Patient, error) {
	p, err := scanPatient(r.db.Pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE user_id=$1 AND name=$2`, userID, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find patient: %w", err)
	}
	return &p, nil
}

// CreatePatient inserts p. If a concurrent job created the same (user_id, name)
// first, that row is returned instead.
func (r *PatientRepo) CreatePatient(ctx context.Context, p models.Patient) (models.Patient, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	created, err := scanPatient(r.db.Pool.QueryRow(ctx, `
INSERT INTO patients (id, user_id, name, age, gender, contact, address)
VALUES ($1, $2, $3, NULLIF($4,''), NULLIF($5,''), NULLIF($6,''), NULLIF($7,''))
ON CONFLICT (user_id, name) DO NOTHING
RETURNING `+patientColumns,
		p.ID, p.UserID, p.Name, p.Age, p.Gender, p.Contact, p.Address))
	if errors.Is(err, pgx.ErrNoRows) {
		existing, ferr := r.FindPatient(ctx, p.UserID, p.Name)
		if ferr != nil {
			return models.Patient{}, ferr
		}
		if existing == nil {
			return models.Patient{}, fmt.Errorf("create patient: conflicting row vanished")
		}
		return *existing, nil
	}
	if err != nil {
		return models.Patient{}, fmt.Errorf("create patient: %w", err)
	}
	return created, nil
}
