// Package httputil holds the gateway's JSON response helpers, request
// parsing and the middleware chain shared by every route.
//
// Error replies always have the shape
//
//	{"error": "select a fund first", "code": "fund_required"}
//
// where code is one of the Code* constants.
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.CORSMiddleware(cfg.Server.AllowedOrigins),
//		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
//		httputil.ContentTypeMiddleware,
//	)(router)
package httputil
