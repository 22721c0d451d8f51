package auth

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"campus-backend/internal/engine"
	"campus-backend/internal/store"
)

// Handler handles authentication endpoints.
type Handler struct {
	store     *store.Store
	jwtSecret string
}

func NewHandler(s *store.Store, jwtSecret string) *Handler {
	return &Handler{store: s, jwtSecret: jwtSecret}
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.InvalidPayloadError()
	}
	if body.Email == "" || body.Password == "" {
		return engine.UnauthorizedError("Email and password are required")
	}

	ctx := c.Context()

	user, err := h.findUserByEmail(ctx, body.Email)
	if err != nil {
		return engine.UnauthorizedError("Invalid email or password")
	}

	passwordHash, _ := user["password_hash"].(string)
	if !CheckPassword(body.Password, passwordHash) {
		return engine.UnauthorizedError("Invalid email or password")
	}

	userID, _ := user["id"].(string)
	role, _ := user["role"].(string)

	pair, err := h.generateTokenPair(ctx, userID, role)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /api/auth/refresh. Refresh tokens are single use:
// the presented token is deleted and a new pair is issued.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.InvalidPayloadError()
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	ctx := c.Context()

	pb := h.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, h.store.DB,
		"SELECT rt.id, rt.user_id, rt.expires_at, u.role FROM refresh_tokens rt "+
			"JOIN users u ON u.id = rt.user_id WHERE rt.token = "+pb.Add(body.RefreshToken),
		pb.Params()...)
	if err != nil {
		return engine.UnauthorizedError("Invalid refresh token")
	}

	expiresAt := tokenExpiry(row["expires_at"])
	if time.Now().After(expiresAt) {
		h.deleteToken(ctx, body.RefreshToken)
		return engine.UnauthorizedError("Refresh token expired")
	}

	h.deleteToken(ctx, body.RefreshToken)

	userID, _ := row["user_id"].(string)
	role, _ := row["role"].(string)

	pair, err := h.generateTokenPair(ctx, userID, role)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /api/auth/logout.
func (h *Handler) Logout(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.InvalidPayloadError()
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	h.deleteToken(c.Context(), body.RefreshToken)

	return c.JSON(fiber.Map{"message": "Logged out"})
}

// RegisterRoutes registers auth routes on the given Fiber app.
func RegisterRoutes(app *fiber.App, h *Handler) {
	group := app.Group("/api/auth")
	group.Post("/login", h.Login)
	group.Post("/refresh", h.Refresh)
	group.Post("/logout", h.Logout)
}

func (h *Handler) findUserByEmail(ctx context.Context, email string) (map[string]any, error) {
	pb := h.store.Dialect.NewParamBuilder()
	return store.QueryRow(ctx, h.store.DB,
		"SELECT id, email, password_hash, role FROM users WHERE email = "+pb.Add(email),
		pb.Params()...)
}

// tokenExpiry handles both driver representations of the expires_at column:
// postgres scans a time.Time, sqlite a stored RFC3339 string.
func tokenExpiry(v any) time.Time {
	switch val := v.(type) {
	case time.Time:
		return val
	case string:
		if t, err := time.Parse(time.RFC3339, val); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (h *Handler) deleteToken(ctx context.Context, token string) {
	pb := h.store.Dialect.NewParamBuilder()
	_, _ = store.Exec(ctx, h.store.DB,
		"DELETE FROM refresh_tokens WHERE token = "+pb.Add(token), pb.Params()...)
}

func (h *Handler) generateTokenPair(ctx context.Context, userID, role string) (*TokenPair, error) {
	accessToken, err := GenerateAccessToken(userID, role, h.jwtSecret)
	if err != nil {
		return nil, err
	}

	refreshToken := GenerateRefreshToken()
	pb := h.store.Dialect.NewParamBuilder()
	sqlStr := "INSERT INTO refresh_tokens (id, user_id, token, expires_at) VALUES (" +
		pb.Add(uuid.NewString()) + ", " + pb.Add(userID) + ", " + pb.Add(refreshToken) + ", " + pb.Add(time.Now().Add(RefreshTokenTTL).UTC().Format(time.RFC3339)) + ")"
	if _, err := store.Exec(ctx, h.store.DB, sqlStr, pb.Params()...); err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
