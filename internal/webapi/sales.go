package webapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prodauth/prodauth/internal/ledger"
	"github.com/prodauth/prodauth/internal/webserver"
)

// salePayload accepts JSON or multipart. A multipart "qrcode" file takes
// precedence over product_id.
type salePayload struct {
	CredentialsPayload
	BuyerAddress string `json:"buyer_address" form:"buyer_address" validate:"required"`
	ProductID    string `json:"product_id" form:"product_id"`
}

type purchasePayload struct {
	CredentialsPayload
	SellerAddress string `json:"seller_address" form:"seller_address" validate:"required"`
	ProductID     string `json:"product_id" form:"product_id"`
}

func registerSaleRoutes() {
	webserver.ApiPOST("/sales", initiateSale)
	webserver.ApiPOST("/purchases/verify", verifyPurchase)
}

// initiateSale marks a product as sold to a buyer
//
// @Summary initiate a sale
// @Tags Sales
// @Router /api/v1/sales [post]
func initiateSale(c echo.Context) error {
	var payload salePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse sale", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	qr, err := readUpload(c, "qrcode")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to read qrcode upload", err.Error())
	}
	id, rc, err := getLedger(c).InitiateSale(c.Request().Context(), payload.credentials(), ledger.TransferRequest{
		Identifier:   payload.ProductID,
		QRImage:      qr,
		Counterparty: payload.BuyerAddress,
	})
	if err != nil {
		return failWith(c, err, "Sale failed")
	}
	return ok(c, map[string]interface{}{
		"product_id": id,
		"tx_hash":    rc.TxHash,
		"status":     rc.Status,
	})
}

// verifyPurchase lets a buyer confirm a product received from a seller
//
// @Summary verify a purchase
// @Tags Sales
// @Router /api/v1/purchases/verify [post]
func verifyPurchase(c echo.Context) error {
	var payload purchasePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse purchase", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	qr, err := readUpload(c, "qrcode")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to read qrcode upload", err.Error())
	}
	id, rc, err := getLedger(c).VerifyPurchase(c.Request().Context(), payload.credentials(), ledger.TransferRequest{
		Identifier:   payload.ProductID,
		QRImage:      qr,
		Counterparty: payload.SellerAddress,
	})
	if err != nil {
		return failWith(c, err, "Purchase verification failed")
	}
	return ok(c, map[string]interface{}{
		"product_id": id,
		"tx_hash":    rc.TxHash,
		"status":     rc.Status,
	})
}
