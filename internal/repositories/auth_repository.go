package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cafe_backend/internal/models"
)

// AuthRepository defines the user lookups used by login, POS and notifications.
type AuthRepository interface {
	CreateUser(ctx context.Context, executor SQLExecutor, user *models.User, hashedPassword *string) (int64, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, string, error) // Returns User, HashedPassword, Error
	FindUserByID(ctx context.Context, executor SQLExecutor, userID int64) (*models.User, error)
	FindUserByPhone(ctx context.Context, executor SQLExecutor, phone string) (*models.User, error)
	UpdateFCMToken(ctx context.Context, userID int64, token string) error
	FindStaffWithPushTokens(ctx context.Context) ([]models.User, error)
}

// authRepository implements the AuthRepository interface.
type authRepository struct {
	db *sql.DB
}

// NewAuthRepository creates a new instance of AuthRepository.
func NewAuthRepository(db *sql.DB) AuthRepository {
	return &authRepository{db: db}
}

const userColumns = `id, name, phone, username, role, fcm_token, is_active, created_at, updated_at`

func scanUser(s scanner, user *models.User, extra ...interface{}) error {
	dest := []interface{}{
		&user.ID, &user.Name, &user.Phone, &user.Username, &user.Role, &user.FCMToken,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	}
	return s.Scan(append(dest, extra...)...)
}

// CreateUser inserts a new user. Customers have no password.
func (r *authRepository) CreateUser(ctx context.Context, executor SQLExecutor, user *models.User, hashedPassword *string) (int64, error) {
	query := `INSERT INTO users (name, phone, username, password_hash, role, is_active, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, TRUE, $6, $6)
	          RETURNING id`
	if executor == nil {
		executor = r.db
	}

	currentTime := time.Now()
	if user.Role == "" {
		user.Role = models.RoleCustomer
	}

	err := executor.QueryRowContext(ctx, query,
		user.Name, user.Phone, user.Username, hashedPassword, user.Role, currentTime,
	).Scan(&user.ID)
	if err != nil {
		return 0, wrapDBError(err, "creating user")
	}
	user.IsActive = true
	user.CreatedAt, user.UpdatedAt = currentTime, currentTime
	return user.ID, nil
}

// FindUserByUsername retrieves a staff user and their password hash.
func (r *authRepository) FindUserByUsername(ctx context.Context, username string) (*models.User, string, error) {
	user := &models.User{}
	var hashedPassword sql.NullString
	query := `SELECT ` + userColumns + `, password_hash FROM users WHERE username = $1`

	err := scanUser(r.db.QueryRowContext(ctx, query, username), user, &hashedPassword)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("%w: finding user by username %s: %v", ErrDatabaseError, username, err)
	}
	return user, hashedPassword.String, nil
}

// FindUserByID retrieves a user by their ID.
func (r *authRepository) FindUserByID(ctx context.Context, executor SQLExecutor, userID int64) (*models.User, error) {
	if executor == nil {
		executor = r.db
	}
	user := &models.User{}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if err := scanUser(executor.QueryRowContext(ctx, query, userID), user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: finding user by ID %d: %v", ErrDatabaseError, userID, err)
	}
	return user, nil
}

func (r *authRepository) FindUserByPhone(ctx context.Context, executor SQLExecutor, phone string) (*models.User, error) {
	if executor == nil {
		executor = r.db
	}
	user := &models.User{}
	query := `SELECT ` + userColumns + ` FROM users WHERE phone = $1`
	if err := scanUser(executor.QueryRowContext(ctx, query, phone), user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: finding user by phone: %v", ErrDatabaseError, err)
	}
	return user, nil
}

func (r *authRepository) UpdateFCMToken(ctx context.Context, userID int64, token string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET fcm_token = $1, updated_at = NOW() WHERE id = $2`, token, userID)
	if err != nil {
		return wrapDBError(err, "updating fcm token")
	}
	if err := expectAffected(res, "updating fcm token"); err != nil {
		return ErrNotFound
	}
	return nil
}

// FindStaffWithPushTokens lists active staff and admins who registered a device.
func (r *authRepository) FindStaffWithPushTokens(ctx context.Context) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
	          WHERE role IN ('STAFF', 'ADMIN') AND is_active = TRUE AND fcm_token IS NOT NULL
	          ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapDBError(err, "listing staff push tokens")
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var u models.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("%w: scanning user: %v", ErrDatabaseError, err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating users: %v", ErrDatabaseError, err)
	}
	return users, nil
}
