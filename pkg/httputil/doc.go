// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteSuccess(w, cookbook)
//	httputil.WriteCreated(w, recipe)
//	httputil.WriteAppError(w, r, err)
//
// WriteAppError maps apperr kinds onto status codes and always writes the
// body {"error": "..."}. Errors without a kind become 500 "operation failed";
// the cause is logged, never returned.
//
// # Request Parsing
//
//	var req CreateCookbookRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return
//	}
//	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
//	page, err := httputil.ParsePage(r, httputil.DefaultPageSize)
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.CORSMiddleware(origins),
//	)(router)
package httputil
