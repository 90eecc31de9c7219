package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Cron endpoints run the same settlement jobs the in-process scheduler
// runs, for external cron services and manual operation. Guarded by
// middleware.CronGuard.

func (h *Handler) CronExpireTasks(c echo.Context) error {
	report, err := h.Engine.RunExpireUnclaimedTasks(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) CronAutoRelease(c echo.Context) error {
	report, err := h.Engine.RunAutoReleaseCommission(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) CronSettleTransfers(c echo.Context) error {
	report, err := h.Engine.RunSettlePendingTransfers(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, report)
}
