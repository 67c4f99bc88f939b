package webapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prodauth/prodauth/internal/chain"
	"github.com/prodauth/prodauth/internal/domain"
	"github.com/prodauth/prodauth/internal/webserver"
)

// CredentialsPayload is the signing account sent with every contract action.
// It is used for one call and never stored.
type CredentialsPayload struct {
	Address    string `json:"address" form:"address" validate:"required"`
	PrivateKey string `json:"private_key" form:"private_key" validate:"required"`
}

func (p CredentialsPayload) credentials() chain.Credentials {
	return chain.Credentials{Address: p.Address, PrivateKey: p.PrivateKey}
}

type registerPayload struct {
	CredentialsPayload
	Name string `json:"name" form:"name" validate:"required,max=255"`
}

func registerParticipantRoutes() {
	webserver.ApiPOST("/sellers/register", registerRole(domain.RoleSeller))
	webserver.ApiPOST("/buyers/register", registerRole(domain.RoleBuyer))
	webserver.ApiGET("/participants", listParticipants)
}

// registerRole registers the calling account with the contract
//
// @Summary register a seller or buyer
// @Tags Participants
// @Router /api/v1/sellers/register [post]
// @Router /api/v1/buyers/register [post]
func registerRole(role string) echo.HandlerFunc {
	return func(c echo.Context) error {
		var payload registerPayload
		if err := c.Bind(&payload); err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
		}
		if err := c.Validate(&payload); err != nil {
			return handleValidationError(c, err)
		}
		p, rc, err := getLedger(c).RegisterParticipant(c.Request().Context(), role, payload.credentials(), payload.Name)
		if err != nil {
			return failWith(c, err, "Registration failed")
		}
		return ok(c, map[string]interface{}{
			"participant": p,
			"tx_hash":     rc.TxHash,
			"status":      rc.Status,
		})
	}
}

func listParticipants(c echo.Context) error {
	page, pageSize := parsePagination(c)
	rows, total, err := getLedger(c).ListParticipants(c.Request().Context(), queryFilter(c, "role", "address"), page, pageSize)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query participants", err.Error())
	}
	return paged(c, rows, total, page, pageSize)
}
