package webapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prodauth/prodauth/internal/webserver"
	"github.com/prodauth/prodauth/pkg/metrics"
	"go.uber.org/zap"
)

func registerTransactionRoutes() {
	webserver.ApiGET("/transactions", listTransactions)
	webserver.ApiPOST("/transactions/track", trackTransactions)
	webserver.ApiGET("/stats/:metric", queryStats)
}

func listTransactions(c echo.Context) error {
	page, pageSize := parsePagination(c)
	filter := queryFilter(c, "status", "method", "identifier", "from_address")
	rows, total, err := getLedger(c).ListTransactions(c.Request().Context(), filter, page, pageSize)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query transactions", err.Error())
	}
	return paged(c, rows, total, page, pageSize)
}

// trackTransactions runs a receipt check now instead of waiting for the job
//
// @Summary manually trigger receipt tracking
// @Tags Transactions
// @Router /api/v1/transactions/track [post]
func trackTransactions(c echo.Context) error {
	start := time.Now()
	stats, err := GetAppContext(c).TrackReceipts(c.Request().Context())
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Receipt tracking failed", err.Error())
	}
	zap.L().Info("manual receipt tracking triggered",
		zap.String("namespace", "web"),
		zap.Int64("checked", stats.Checked),
		zap.Duration("duration", time.Since(start)))
	return ok(c, stats)
}

// queryStats returns samples of a recorded metric over the last hours (default 24)
func queryStats(c echo.Context) error {
	hours := 24
	if v := c.QueryParam("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 24*30 {
			return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "hours must be between 1 and 720", nil)
		}
		hours = n
	}
	end := time.Now().Add(time.Second)
	points, err := metrics.Query(c.Param("metric"), end.Add(-time.Duration(hours)*time.Hour), end)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "METRICS_ERROR", "Failed to query metric", err.Error())
	}
	return ok(c, map[string]interface{}{
		"metric": c.Param("metric"),
		"total":  metrics.Counter(c.Param("metric")),
		"points": points,
	})
}
