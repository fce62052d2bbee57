package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/upstars/corporate-discounts/internal/data/pgxutil"
	domainauth "github.com/upstars/corporate-discounts/internal/domain/auth"
	apperrors "github.com/upstars/corporate-discounts/internal/errors"
)

// AuthorizedUserRepo stores the allow-list in Postgres.
type AuthorizedUserRepo struct {
	DB *sql.DB
}

// NewAuthorizedUserRepo creates a new allow-list repository.
func NewAuthorizedUserRepo(db *sql.DB) *AuthorizedUserRepo {
	return &AuthorizedUserRepo{DB: db}
}

const authorizedUserColumns = `id, email, name, role, added_at, added_by`

type authorizedUserRow struct {
	ID      uuid.UUID `db:"id"`
	Email   string    `db:"email"`
	Name    string    `db:"name"`
	Role    string    `db:"role"`
	AddedAt time.Time `db:"added_at"`
	AddedBy string    `db:"added_by"`
}

func (r authorizedUserRow) toDomain() domainauth.AuthorizedUser {
	return domainauth.AuthorizedUser{
		ID:      r.ID.String(),
		Email:   r.Email,
		Name:    r.Name,
		Role:    domainauth.Role(r.Role),
		AddedAt: r.AddedAt,
		AddedBy: r.AddedBy,
	}
}

// ListAuthorizedUsers returns every allow-list entry ordered by email.
func (r *AuthorizedUserRepo) ListAuthorizedUsers(ctx context.Context) ([]domainauth.AuthorizedUser, error) {
	var rows []authorizedUserRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		res, err := conn.Query(ctx, `SELECT `+authorizedUserColumns+` FROM authorized_users ORDER BY lower(email)`)
		if err != nil {
			return err
		}
		rows, err = pgx.CollectRows(res, pgx.RowToStructByName[authorizedUserRow])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list authorized users: %w", apperrors.MapDBError(err))
	}

	users := make([]domainauth.AuthorizedUser, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toDomain())
	}
	return users, nil
}

// GetByEmail returns the entry matching email case-insensitively.
func (r *AuthorizedUserRepo) GetByEmail(ctx context.Context, email string) (*domainauth.AuthorizedUser, error) {
	email = domainauth.NormalizeEmail(email)
	if email == "" {
		return nil, apperrors.ValidationField("email", "email is required")
	}

	var row authorizedUserRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		res, err := conn.Query(ctx,
			`SELECT `+authorizedUserColumns+` FROM authorized_users WHERE lower(email) = $1`, email)
		if err != nil {
			return err
		}
		row, err = pgx.CollectOneRow(res, pgx.RowToStructByName[authorizedUserRow])
		return err
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}

	u := row.toDomain()
	return &u, nil
}

// Create inserts a new entry. A second entry with the same normalized email is a Conflict.
func (r *AuthorizedUserRepo) Create(ctx context.Context, u domainauth.AuthorizedUser) (*domainauth.AuthorizedUser, error) {
	if err := domainauth.ValidateAllowlist([]domainauth.AuthorizedUser{u}); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid allow-list entry")
	}

	var row authorizedUserRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		res, err := conn.Query(ctx, `
			INSERT INTO authorized_users (id, email, name, role, added_by)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+authorizedUserColumns,
			uuid.New(), u.Email, u.Name, string(u.Role), u.AddedBy)
		if err != nil {
			return err
		}
		row, err = pgx.CollectOneRow(res, pgx.RowToStructByName[authorizedUserRow])
		return err
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}

	out := row.toDomain()
	return &out, nil
}

// Delete removes the entry matching email. A missing entry is NotFound.
func (r *AuthorizedUserRepo) Delete(ctx context.Context, email string) error {
	email = domainauth.NormalizeEmail(email)
	if email == "" {
		return apperrors.ValidationField("email", "email is required")
	}

	res, err := r.DB.ExecContext(ctx, `DELETE FROM authorized_users WHERE lower(email) = $1`, email)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound("authorized user not found")
	}
	return nil
}

// ReplaceAll swaps the whole allow-list for users inside one transaction.
func (r *AuthorizedUserRepo) ReplaceAll(ctx context.Context, users []domainauth.AuthorizedUser) error {
	if err := domainauth.ValidateAllowlist(users); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid allow-list")
	}

	err := pgxutil.WithPgxTx(ctx, r.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM authorized_users`); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, u := range users {
			id, err := uuid.Parse(u.ID)
			if err != nil {
				id = uuid.New()
			}
			addedAt := u.AddedAt
			if addedAt.IsZero() {
				addedAt = time.Now().UTC()
			}
			batch.Queue(`
				INSERT INTO authorized_users (id, email, name, role, added_at, added_by)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				id, u.Email, u.Name, string(u.Role), addedAt, u.AddedBy)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

var errNilRepo = errors.New("authorized user repository is nil")

// Ping checks that the repository's database is reachable.
func (r *AuthorizedUserRepo) Ping(ctx context.Context) error {
	if r == nil || r.DB == nil {
		return errNilRepo
	}
	return r.DB.PingContext(ctx)
}
