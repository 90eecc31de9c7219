package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/appesso/taskpay/internal/escrow"
	"github.com/appesso/taskpay/internal/task"
)

// Handler exposes the settlement engine over HTTP.
type Handler struct {
	Engine *escrow.Engine
}

func New(engine *escrow.Engine) *Handler {
	return &Handler{Engine: engine}
}

// fail maps the engine's sentinel errors onto HTTP statuses.
func fail(c echo.Context, err error) error {
	switch {
	case errors.Is(err, escrow.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, escrow.ErrInsufficientFunds):
		return c.JSON(http.StatusPaymentRequired, echo.Map{"error": "insufficient balance"})
	case errors.Is(err, escrow.ErrInvalidAmount):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount must be positive"})
	case errors.Is(err, escrow.ErrSelfTransfer):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot transfer to yourself"})
	case errors.Is(err, task.ErrSelfAcceptance):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot accept your own task"})
	case errors.Is(err, task.ErrNotAcceptor), errors.Is(err, task.ErrNotOwner):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not allowed"})
	case errors.Is(err, task.ErrInvalidState):
		return c.JSON(http.StatusConflict, echo.Map{"error": "task is not in a state that allows this"})
	default:
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "server error"})
	}
}
