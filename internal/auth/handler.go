package auth

import (
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/appesso/taskpay/internal/db"
	"github.com/appesso/taskpay/internal/escrow"
)

// Handler serves signup, login and profile lookups. Account rows and the
// welcome bonus go through the settlement engine so the ledger stays the
// single source of money movement.
type Handler struct {
	Engine *escrow.Engine
}

type SignupRequest struct {
	Handle   string `json:"handle" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

func (h *Handler) Signup(c echo.Context) error {
	req := new(SignupRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Handle == "" || len(req.Password) < 6 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "handle and a password of at least 6 characters are required"})
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "server error"})
	}

	ctx := c.Request().Context()
	var userID string
	err = db.Conn.QueryRow(ctx, `
		INSERT INTO users (id, handle, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id
	`, uuid.New().String(), req.Handle, string(hashed)).Scan(&userID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "handle already taken"})
	}

	// Opens the wallet and credits the welcome bonus.
	if _, err := h.Engine.OpenAccount(ctx, userID); err != nil {
		log.Error().Err(err).Str("user", userID).Msg("wallet creation failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "wallet creation failed"})
	}

	signed, err := signToken(userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token generation failed"})
	}
	return c.JSON(http.StatusOK, TokenResponse{Token: signed})
}

type LoginRequest struct {
	Handle   string `json:"handle" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) Login(c echo.Context) error {
	req := new(LoginRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	ctx := c.Request().Context()
	var userID, hash string
	err := db.Conn.QueryRow(ctx, `
		SELECT id, password_hash FROM users WHERE handle = $1
	`, req.Handle).Scan(&userID, &hash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	signed, err := signToken(userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token generation failed"})
	}
	return c.JSON(http.StatusOK, TokenResponse{Token: signed})
}

// Me returns the authenticated user's profile and current balance.
func (h *Handler) Me(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	ctx := c.Request().Context()

	var id, handle string
	var createdAt time.Time
	err := db.Conn.QueryRow(ctx, `
		SELECT id, handle, created_at FROM users WHERE id = $1
	`, userID).Scan(&id, &handle, &createdAt)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	acct, err := h.Engine.Balance(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "wallet lookup failed"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"id":         id,
		"handle":     handle,
		"balance":    acct.Balance,
		"created_at": createdAt,
	})
}

func signToken(userID string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(72 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(os.Getenv("JWT_SECRET")))
}
