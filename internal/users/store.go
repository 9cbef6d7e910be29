// Package users implements the relational user store. A user row is created
// from a verified identity assertion; profile fields are seeded from the
// subject's linked accounts.
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/fault"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/model"
)

// defaultRole is assigned to users created from an identity assertion.
const defaultRole = "buyer"

// Identity resolves identity assertions into subjects and linked accounts.
type Identity interface {
	VerifyToken(ctx context.Context, token string) (string, error)
	AccountsByID(ctx context.Context, subjectID string) ([]model.LinkedAccount, error)
}

// Store persists user profiles in Postgres.
type Store struct {
	db       *pgxpool.Pool
	identity Identity
	logger   *slog.Logger
}

// NewStore creates a Store.
func NewStore(db *pgxpool.Pool, identity Identity, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, identity: identity, logger: logger}
}

const userColumns = "id, identity_id, email, name, role, photo, job_title, wallet_address"

// CreateFromToken verifies an identity assertion and creates the user it
// asserts, seeding the profile from the subject's linked accounts. If a user
// already exists for the subject, that user is returned unchanged.
func (s *Store) CreateFromToken(ctx context.Context, token string) (*model.User, error) {
	subjectID, err := s.identity.VerifyToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if existing, err := s.FindByIdentityID(ctx, subjectID); err == nil {
		return existing, nil
	} else if !fault.Is(err, fault.NotFound) {
		return nil, err
	}

	accounts, err := s.identity.AccountsByID(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	profile := profileFromAccounts(accounts)

	id := uuid.NewString()
	if profile.email == "" {
		profile.email = id + "@example.com"
	}
	if profile.name == "" {
		profile.name = "Name"
	}

	user := model.User{
		ID:            id,
		IdentityID:    subjectID,
		Email:         profile.email,
		Name:          profile.name,
		Role:          defaultRole,
		WalletAddress: profile.wallet,
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO users (id, identity_id, email, name, role, photo, job_title, wallet_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.IdentityID, user.Email, user.Name, user.Role, user.Photo, user.JobTitle, user.WalletAddress,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	s.logger.Info("user created", "user_id", user.ID, "identity_id", subjectID)
	return &user, nil
}

// Update overwrites a user's mutable profile fields.
func (s *Store) Update(ctx context.Context, user model.User) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users
		SET email = $2, name = $3, role = $4, photo = $5, job_title = $6, wallet_address = $7
		WHERE id = $1`,
		user.ID, user.Email, user.Name, user.Role, user.Photo, user.JobTitle, user.WalletAddress,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fault.New(fault.NotFound, "user %s", user.ID)
	}
	return nil
}

// Remove deletes a user.
func (s *Store) Remove(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fault.New(fault.NotFound, "user %s", id)
	}
	return nil
}

// FindByID returns a user by primary key.
func (s *Store) FindByID(ctx context.Context, id string) (*model.User, error) {
	return s.findOne(ctx, "id", id)
}

// FindByEmail returns a user by email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findOne(ctx, "email", email)
}

// FindByIdentityID returns a user by its identity subject id.
func (s *Store) FindByIdentityID(ctx context.Context, identityID string) (*model.User, error) {
	return s.findOne(ctx, "identity_id", identityID)
}

func (s *Store) findOne(ctx context.Context, column, value string) (*model.User, error) {
	var u model.User
	err := s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value,
	).Scan(&u.ID, &u.IdentityID, &u.Email, &u.Name, &u.Role, &u.Photo, &u.JobTitle, &u.WalletAddress)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.New(fault.NotFound, "user with %s %q", column, value)
	}
	if err != nil {
		return nil, fmt.Errorf("query user by %s: %w", column, err)
	}
	return &u, nil
}

// List returns all users ordered by email.
func (s *Store) List(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.IdentityID, &u.Email, &u.Name, &u.Role, &u.Photo, &u.JobTitle, &u.WalletAddress); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

// ExistsByEmail reports whether a user with the email exists.
func (s *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user existence: %w", err)
	}
	return exists, nil
}

type profile struct {
	email  string
	name   string
	wallet string
}

// profileFromAccounts seeds profile fields from linked accounts: first email
// and name win, a wallet-typed account supplies the wallet address.
func profileFromAccounts(accounts []model.LinkedAccount) profile {
	var p profile
	for _, a := range accounts {
		if p.email == "" && a.Email != "" {
			p.email = a.Email
		}
		if p.name == "" && a.Name != "" {
			p.name = a.Name
		}
		if p.wallet == "" && a.Type == "wallet" {
			p.wallet = a.Address
		}
	}
	return p
}
