package webapi

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prodauth/prodauth/internal/app"
	"github.com/prodauth/prodauth/internal/qrcodec"
	"github.com/prodauth/prodauth/internal/webserver"
)

type productPayload struct {
	CredentialsPayload
	ProductCode string `json:"product_code" form:"product_code" validate:"required,max=255"`
}

func registerProductRoutes() {
	webserver.ApiGET("/products", listProducts)
	webserver.ApiPOST("/products", createProduct)
	webserver.ApiGET("/products/:identifier", getProduct)
	webserver.ApiGET("/products/:identifier/qrcode.png", getProductQRCode)
	webserver.ApiGET("/products/:identifier/inspect", inspectProduct)
}

func listProducts(c echo.Context) error {
	page, pageSize := parsePagination(c)
	filter := queryFilter(c, "status", "seller_address", "owner_address", "product_code")
	rows, total, err := getLedger(c).ListProducts(c.Request().Context(), filter, page, pageSize)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query products", err.Error())
	}
	return paged(c, rows, total, page, pageSize)
}

// createProduct mints an identifier, registers it on chain and returns its QR code
//
// @Summary register a product
// @Tags Products
// @Success 200 {object} Response
// @Router /api/v1/products [post]
func createProduct(c echo.Context) error {
	var payload productPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse product", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	res, err := getLedger(c).AddProduct(c.Request().Context(), payload.credentials(), payload.ProductCode)
	if err != nil {
		return failWith(c, err, "Product registration failed")
	}
	return ok(c, map[string]interface{}{
		"identifier": res.Product.Identifier,
		"product":    res.Product,
		"tx_hash":    res.Receipt.TxHash,
		"status":     res.Receipt.Status,
		"qrcode":     base64.StdEncoding.EncodeToString(res.QRCode),
	})
}

func getProduct(c echo.Context) error {
	p, err := getLedger(c).GetProduct(c.Request().Context(), c.Param("identifier"))
	if err != nil {
		return failWith(c, err, "Product not found")
	}
	return ok(c, p)
}

// getProductQRCode downloads the QR code of a product as PNG.
// Query: size (pixels per module), level (low|medium|quartile|high), border (modules).
func getProductQRCode(c echo.Context) error {
	opts, err := qrcodeOptionsFromQuery(c)
	if err != nil {
		return failWith(c, err, "Invalid QR code options")
	}
	png, err := getLedger(c).ProductQRCode(c.Request().Context(), c.Param("identifier"), opts)
	if err != nil {
		return failWith(c, err, "Product not found")
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", c.Param("identifier")+".png"))
	return c.Blob(http.StatusOK, "image/png", png)
}

func qrcodeOptionsFromQuery(c echo.Context) (qrcodec.Options, error) {
	opts, err := app.QrcodeOptions(GetAppContext(c).Config().Qrcode)
	if err != nil {
		opts = qrcodec.DefaultOptions()
	}
	if v := c.QueryParam("level"); v != "" {
		if opts.Level, err = qrcodec.ParseLevel(v); err != nil {
			return opts, err
		}
	}
	if v := c.QueryParam("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return opts, fmt.Errorf("%w: size %q", qrcodec.ErrInvalidInput, v)
		}
		opts.BoxSize = n
	}
	if v := c.QueryParam("border"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("%w: border %q", qrcodec.ErrInvalidInput, v)
		}
		opts.Border = n
		opts.NoBorder = n == 0
	}
	return opts, nil
}

// inspectProduct reads the contract's record of a product
func inspectProduct(c echo.Context) error {
	out, err := getLedger(c).Inspect(c.Request().Context(), c.Param("identifier"))
	if err != nil {
		return failWith(c, err, "Inspect failed")
	}
	return ok(c, out)
}
