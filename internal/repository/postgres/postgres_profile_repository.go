package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/capitalcayman/netbank/internal/models"
	pkgerrors "github.com/capitalcayman/netbank/pkg/errors"
)

type PostgresProfileRepository struct {
	db *sql.DB
}

func NewPostgresProfileRepository(db *sql.DB) *PostgresProfileRepository {
	return &PostgresProfileRepository{db: db}
}

func (r *PostgresProfileRepository) Create(ctx context.Context, profile *models.Profile) error {
	if profile == nil {
		return fmt.Errorf("profile is nil")
	}
	if profile.Email == "" || profile.PasswordHash == "" {
		return fmt.Errorf("email and password are required")
	}

	query := `
	INSERT INTO profiles (email, full_name, phone, is_admin, password_hash)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id, created_at
	`
	err := r.db.QueryRowContext(
		ctx,
		query,
		profile.Email,
		profile.FullName,
		profile.Phone,
		profile.IsAdmin,
		profile.PasswordHash,
	).Scan(&profile.ID, &profile.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (r *PostgresProfileRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	query := `SELECT id, email, full_name, phone, is_admin, password_hash, created_at FROM profiles WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresProfileRepository) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	if email == "" {
		return nil, fmt.Errorf("email cannot be empty")
	}
	query := `SELECT id, email, full_name, phone, is_admin, password_hash, created_at FROM profiles WHERE email = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresProfileRepository) Update(ctx context.Context, profile *models.Profile) error {
	query := `UPDATE profiles SET full_name = $1, phone = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, profile.FullName, profile.Phone, profile.ID)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if affected == 0 {
		return pkgerrors.ErrUserNotFound
	}
	return nil
}

func (r *PostgresProfileRepository) List(ctx context.Context) ([]models.Profile, error) {
	query := `SELECT id, email, full_name, phone, is_admin, password_hash, created_at FROM profiles ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []models.Profile
	for rows.Next() {
		var p models.Profile
		var phone sql.NullString
		if err := rows.Scan(&p.ID, &p.Email, &p.FullName, &phone, &p.IsAdmin, &p.PasswordHash, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		p.Phone = phone.String
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}
	return profiles, nil
}

func (r *PostgresProfileRepository) scanOne(row *sql.Row) (*models.Profile, error) {
	var p models.Profile
	var phone sql.NullString
	err := row.Scan(&p.ID, &p.Email, &p.FullName, &phone, &p.IsAdmin, &p.PasswordHash, &p.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrUserNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	p.Phone = phone.String
	return &p, nil
}
