package webapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/prodauth/prodauth/internal/app"
	"github.com/prodauth/prodauth/internal/chain"
	"github.com/prodauth/prodauth/internal/ledger"
	"github.com/prodauth/prodauth/internal/productid"
	"github.com/prodauth/prodauth/internal/qrcodec"
	"github.com/prodauth/prodauth/internal/webserver"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Response is the JSON envelope of every API reply
type Response struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// PageResult wraps one page of a listing
type PageResult struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Response{Code: "OK", Message: "success", Data: data})
}

func fail(c echo.Context, status int, code, msg string, details interface{}) error {
	return c.JSON(status, Response{Code: code, Message: msg, Details: details})
}

func paged(c echo.Context, items interface{}, total int64, page, pageSize int) error {
	return ok(c, PageResult{Items: items, Total: total, Page: page, PageSize: pageSize})
}

// GetAppContext returns the application bound to the request
func GetAppContext(c echo.Context) app.AppContext {
	return c.Get(webserver.AppContextKey).(app.AppContext)
}

func GetDB(c echo.Context) *gorm.DB {
	return GetAppContext(c).DB().WithContext(c.Request().Context())
}

func getLedger(c echo.Context) *ledger.Service {
	return GetAppContext(c).Ledger()
}

// parsePagination reads page and page_size (or perPage). Page is capped at
// ledger.MaxPage and page_size at 500.
func parsePagination(c echo.Context) (int, int) {
	page := 1
	if p, err := strconv.Atoi(c.QueryParam("page")); err == nil && p > 0 {
		page = p
	}
	if page > ledger.MaxPage {
		page = ledger.MaxPage
	}
	pageSize := 20
	raw := c.QueryParam("page_size")
	if raw == "" {
		raw = c.QueryParam("perPage")
	}
	if ps, err := strconv.Atoi(raw); err == nil && ps > 0 {
		pageSize = ps
	}
	if pageSize > 500 {
		pageSize = 500
	}
	return page, pageSize
}

// queryFilter collects the named, non-empty query parameters
func queryFilter(c echo.Context, keys ...string) map[string]interface{} {
	filter := make(map[string]interface{}, len(keys))
	for _, k := range keys {
		if v := strings.TrimSpace(c.QueryParam(k)); v != "" {
			filter[k] = v
		}
	}
	return filter
}

func handleValidationError(c echo.Context, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Request validation failed", map[string]interface{}{
			"fields": fields,
		})
	}
	return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Request validation failed", err.Error())
}

// failWith maps a service error to its HTTP status and code
func failWith(c echo.Context, err error, msg string) error {
	switch {
	case errors.Is(err, chain.ErrInvalidCredentials),
		errors.Is(err, chain.ErrInvalidAddress),
		errors.Is(err, ledger.ErrInvalidInput),
		errors.Is(err, productid.ErrInvalidInput),
		errors.Is(err, qrcodec.ErrInvalidInput),
		errors.Is(err, qrcodec.ErrTooLarge):
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", msg, err.Error())
	case errors.Is(err, qrcodec.ErrNotRecognized):
		return fail(c, http.StatusUnprocessableEntity, "QR_NOT_RECOGNIZED", "QR code not recognized", err.Error())
	case chain.IsContractError(err):
		return fail(c, http.StatusBadGateway, "CONTRACT_ERROR", err.Error(), nil)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fail(c, http.StatusNotFound, "NOT_FOUND", msg, nil)
	}
	zap.L().Error(msg, zap.String("namespace", "web"), zap.Error(err))
	return fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", msg, err.Error())
}

// readUpload returns the bytes of an optional multipart file field.
// A missing field yields nil.
func readUpload(c echo.Context, field string) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
