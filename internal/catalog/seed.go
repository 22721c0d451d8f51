package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"campus-backend/internal/auth"
	"campus-backend/internal/store"
)

// Seed inserts the rows the application cannot run without: the pinned
// app_info row and, when the users table is empty, an initial admin
// account. Idempotent across restarts.
func Seed(ctx context.Context, s *store.Store, adminEmail, adminPassword string) error {
	if err := seedAppInfo(ctx, s); err != nil {
		return err
	}
	return seedAdmin(ctx, s, adminEmail, adminPassword)
}

func seedAppInfo(ctx context.Context, s *store.Store) error {
	pb := s.Dialect.NewParamBuilder()
	_, err := store.QueryRow(ctx, s.DB, "SELECT id FROM app_info WHERE id = "+pb.Add(1), pb.Params()...)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("check app_info: %w", err)
	}

	pb = s.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("INSERT INTO app_info (id, name) VALUES (%s, %s)",
		pb.Add(1), pb.Add("Campus Companion"))
	if _, err := store.Exec(ctx, s.DB, sqlStr, pb.Params()...); err != nil {
		return fmt.Errorf("seed app_info: %w", err)
	}
	return nil
}

func seedAdmin(ctx context.Context, s *store.Store, email, password string) error {
	row, err := store.QueryRow(ctx, s.DB, "SELECT COUNT(*) AS count FROM users")
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	var count int64
	switch v := row["count"].(type) {
	case int64:
		count = v
	case int:
		count = int64(v)
	case float64:
		count = int64(v)
	}
	if count > 0 {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	pb := s.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		"INSERT INTO users (id, email, password_hash, name, role) VALUES (%s, %s, %s, %s, %s)",
		pb.Add(uuid.NewString()), pb.Add(email), pb.Add(hash), pb.Add("Administrator"), pb.Add(auth.RoleAdmin))
	if _, err := store.Exec(ctx, s.DB, sqlStr, pb.Params()...); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	return nil
}
