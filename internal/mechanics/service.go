package mechanics

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"fleet-service/pkg/apperr"
	"fleet-service/pkg/jwt"
	"fleet-service/pkg/validation"
)

// Service contains mechanic account logic.
type Service struct {
	db  *pgxpool.Pool
	log *zap.SugaredLogger
}

// NewService creates a mechanic service backed by the given pool.
func NewService(db *pgxpool.Pool, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

// Register creates a new mechanic account and returns a JWT.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	name := strings.TrimSpace(req.Name)
	if !validation.ValidateName(name) {
		return nil, apperr.Validationf("invalid name")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !validation.ValidateEmail(email) {
		return nil, apperr.Validationf("invalid email")
	}
	if !validation.ValidatePassword(req.Password) {
		return nil, apperr.Validationf("password must be at least 6 characters")
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM mechanics WHERE email=$1)`, email).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, apperr.Conflictf("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	m := &Mechanic{ID: uuid.NewString(), Name: name, Email: email}
	err = s.db.QueryRow(ctx,
		`INSERT INTO mechanics (id, name, email, password_hash) VALUES ($1,$2,$3,$4)
		 RETURNING created_at`,
		m.ID, m.Name, m.Email, string(hash),
	).Scan(&m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert mechanic: %w", err)
	}

	token, err := jwt.Generate(m.ID, m.Email, "mechanic")
	if err != nil {
		return nil, err
	}
	s.log.Infow("mechanic registered", "mechanic_id", m.ID)
	return &AuthResponse{Token: token, Mechanic: m}, nil
}

// Login authenticates a mechanic and returns a JWT. Unknown email and wrong
// password produce the same error.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	var m Mechanic
	var hash string
	err := s.db.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at FROM mechanics WHERE email=$1`,
		email).Scan(&m.ID, &m.Name, &m.Email, &hash, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Validationf("invalid credentials")
	}
	if err != nil {
		return nil, fmt.Errorf("load mechanic: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		return nil, apperr.Validationf("invalid credentials")
	}

	token, err := jwt.Generate(m.ID, m.Email, "mechanic")
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: token, Mechanic: &m}, nil
}

// GetByID fetches a single mechanic by primary key.
func (s *Service) GetByID(ctx context.Context, id string) (*Mechanic, error) {
	var m Mechanic
	err := s.db.QueryRow(ctx,
		`SELECT id, name, email, created_at FROM mechanics WHERE id=$1`, id).
		Scan(&m.ID, &m.Name, &m.Email, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("mechanic %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get mechanic: %w", err)
	}
	return &m, nil
}
