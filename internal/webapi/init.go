// Package webapi holds the JSON handlers mounted under /api/v1.
package webapi

// Init registers every route. webserver.Init must run first.
func Init() {
	registerParticipantRoutes()
	registerProductRoutes()
	registerSaleRoutes()
	registerQrcodeRoutes()
	registerTransactionRoutes()
}
