// Package httputil holds the HTTP plumbing shared by every handler.
//
// All error responses use a single JSON shape, {"error": message}, so
// clients never have to branch on the status code to find the text:
//
//	httputil.WriteValidationError(w, "quantity must be positive")
//	httputil.WriteNotFoundError(w, "sale not found")
//	httputil.WriteInternalError(w, err)
//
// Success helpers mirror the common status codes:
//
//	httputil.WriteSuccess(w, sale)
//	httputil.WriteCreated(w, invoice)
//	httputil.WriteNoContent(w)
//
// Request parsing:
//
//	var req createSaleRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // error already written
//	}
//	limit := httputil.ParseQueryInt(r, "limit", 50)
//
// The middleware stack (request ID, access log, panic recovery) is
// mounted once on the router in pkg/api. Authentication lives in
// pkg/middleware, not here.
package httputil
