package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/appesso/taskpay/internal/ledger"
	"github.com/appesso/taskpay/internal/middleware"
)

func (h *Handler) Balance(c echo.Context) error {
	acct, err := h.Engine.Balance(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user_id": acct.ID,
		"balance": acct.Balance,
	})
}

// Transactions returns the caller's ledger history, newest first.
func (h *Handler) Transactions(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
		}
		limit = n
	}

	entries, err := h.Engine.History(c.Request().Context(), middleware.UserID(c), limit)
	if err != nil {
		return fail(c, err)
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	return c.JSON(http.StatusOK, entries)
}

type TransferRequest struct {
	To     string `json:"to" validate:"required"`
	Amount int64  `json:"amount" validate:"required,min=1"`
	Note   string `json:"note"`
}

// Transfer moves currency to another user immediately.
func (h *Handler) Transfer(c echo.Context) error {
	req := new(TransferRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	entry, err := h.Engine.TransferDirect(c.Request().Context(), middleware.UserID(c), req.To, req.Amount, req.Note)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, entry)
}

type MovementRequest struct {
	Amount int64  `json:"amount" validate:"required,min=1"`
	Note   string `json:"note"`
}

// Deposit records a pending top-up that the settlement job completes.
func (h *Handler) Deposit(c echo.Context) error {
	req := new(MovementRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	entry, err := h.Engine.Deposit(c.Request().Context(), middleware.UserID(c), req.Amount, req.Note)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusAccepted, entry)
}

// Withdraw records a pending cash-out that the settlement job completes.
func (h *Handler) Withdraw(c echo.Context) error {
	req := new(MovementRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	entry, err := h.Engine.Withdraw(c.Request().Context(), middleware.UserID(c), req.Amount, req.Note)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusAccepted, entry)
}

// Reconcile reports drift between the caller's cached balance and the
// ledger fold.
func (h *Handler) Reconcile(c echo.Context) error {
	rep, err := h.Engine.Reconcile(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, rep)
}

// ApplyCorrection rewrites the caller's cached balance from the ledger.
func (h *Handler) ApplyCorrection(c echo.Context) error {
	rep, err := h.Engine.ApplyCorrection(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, rep)
}
