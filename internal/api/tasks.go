package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/appesso/taskpay/internal/middleware"
)

type CreateTaskRequest struct {
	Content string `json:"content" validate:"required"`
	Reward  int64  `json:"reward" validate:"required,min=1"`
}

// CreateTask posts a new task and moves the full reward into escrow.
func (h *Handler) CreateTask(c echo.Context) error {
	req := new(CreateTaskRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Content == "" || req.Reward <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "content and a positive reward are required"})
	}

	tk, err := h.Engine.CreateTask(c.Request().Context(), middleware.UserID(c), req.Content, req.Reward)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, tk)
}

func (h *Handler) GetTask(c echo.Context) error {
	tk, err := h.Engine.Task(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, tk)
}

func (h *Handler) ListTasks(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
		}
		limit = n
	}

	tasks, err := h.Engine.ListTasks(c.Request().Context(), limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, tasks)
}

// Accept claims an open task and settles the initial leg to the acceptor.
func (h *Handler) Accept(c echo.Context) error {
	tk, err := h.Engine.Accept(c.Request().Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, tk)
}

func (h *Handler) RequestCompletion(c echo.Context) error {
	tk, err := h.Engine.RequestCompletion(c.Request().Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, tk)
}

type ConfirmRequest struct {
	Approved bool `json:"approved"`
}

// ConfirmCompletion approves (settling the final leg) or denies a pending
// completion request.
func (h *Handler) ConfirmCompletion(c echo.Context) error {
	req := new(ConfirmRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	tk, err := h.Engine.ConfirmCompletion(c.Request().Context(), c.Param("id"), middleware.UserID(c), req.Approved)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, tk)
}

type OutcomeRequest struct {
	Action string `json:"action"`
}

// ResolveOutcome lets the owner close a disputed task as failed, reclaiming
// the unsettled final leg.
func (h *Handler) ResolveOutcome(c echo.Context) error {
	req := new(OutcomeRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Action != "refund" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown action"})
	}

	tk, err := h.Engine.ResolveOutcome(c.Request().Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, tk)
}
