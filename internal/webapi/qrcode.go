package webapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prodauth/prodauth/internal/productid"
	"github.com/prodauth/prodauth/internal/qrcodec"
	"github.com/prodauth/prodauth/internal/webserver"
	"github.com/prodauth/prodauth/pkg/metrics"
)

func registerQrcodeRoutes() {
	webserver.ApiPOST("/qrcode/decode", decodeQrcode)
}

// decodeQrcode reads the product id from an uploaded image (multipart "file")
func decodeQrcode(c echo.Context) error {
	data, err := readUpload(c, "file")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to read upload", err.Error())
	}
	if len(data) == 0 {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Image file is required", map[string]interface{}{
			"fields": []string{"file"},
		})
	}
	text, err := qrcodec.DecodeBytes(data)
	if err != nil {
		metrics.Incr(metrics.QrcodeDecodeFail)
		return failWith(c, err, "Decode failed")
	}
	return ok(c, map[string]interface{}{
		"product_id": text,
		"valid":      productid.Valid(text),
	})
}
