package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/pdf-genie/internal/database"
)

// User は登録ユーザーです。
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"-"`
}

// UserStore は users テーブルを読み書きします。
type UserStore struct {
	db *database.DB
}

// NewUserStore は UserStore を作成します。
func NewUserStore(db *database.DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, username, email, password_hash, is_active, created_at, updated_at`

// Create はユーザーを保存します。
func (s *UserStore) Create(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		u.ID, u.Username, u.Email, u.PasswordHash, u.IsActive, u.CreatedAt.UTC(), u.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Exists はユーザー名またはメールアドレスが登録済みかを返します。
func (s *UserStore) Exists(ctx context.Context, username, email string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT 1 FROM users WHERE username = ? OR email = ? LIMIT 1`),
		username, email).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return true, nil
}

// FindByUsername はユーザー名で検索します。存在しない場合は nil, nil です。
func (s *UserStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.findOne(ctx, `username = ?`, username)
}

// FindByID はIDで検索します。存在しない場合は nil, nil です。
func (s *UserStore) FindByID(ctx context.Context, id string) (*User, error) {
	return s.findOne(ctx, `id = ?`, id)
}

func (s *UserStore) findOne(ctx context.Context, where string, arg any) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE `+where), arg).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

// SetActive は有効/無効を切り替えます。
func (s *UserStore) SetActive(ctx context.Context, id string, active bool) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`),
		active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}
