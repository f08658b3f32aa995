// Package api is the dashboard gateway: the HTTP surface between the
// browser and the back-office REST API.
//
// Every browser gets a gateway session, identified by an HttpOnly cookie
// and backed by a session.Manager and an editor.UserEditor. The bearer
// token never reaches the browser. With Redis configured the token is kept
// there under the session id, so a restarted gateway restores sessions on
// their next request.
//
// # Routes
//
//	POST   /api/session/login                         log in (rate limited per client IP)
//	POST   /api/session/logout                        log out and expire the cookie
//	GET    /api/session                               session state
//	PUT    /api/session/fund                          select fund and class
//	GET    /api/navigation                            menu and route table
//	GET    /api/pages/{path}                          page data from its endpoint
//	POST   /api/admin/users                           open a new user
//	POST   /api/admin/users/check                     find a user by email or CPF
//	DELETE /api/admin/users/{id}                      delete the open user
//	GET    /api/admin/users/{id}/editor               load a user ("new" for the one being created)
//	PUT    /api/admin/users/{id}/editor               save
//	DELETE /api/admin/users/{id}/editor               discard
//	PUT    /api/admin/users/{id}/editor/profile       profile and password
//	POST   /api/admin/users/{id}/editor/permissions/toggle
//	POST   /api/admin/users/{id}/editor/funds/toggle
//	POST   /api/admin/users/{id}/editor/undo
//	GET    /api/admin/audit                           audit search
//	GET    /api/admin/audit/stats                     audit counts
//
// Page access is decided by the route table generated from the user's own
// permission tree: a path the table does not contain is refused with 403
// even if the client asks for it directly. Pages scoped to a fund answer
// 409 with code fund_required until a fund (and class) is selected.
//
// # Usage
//
//	srv, err := api.NewServer(api.Options{
//		Backend: client,
//		Catalog: catalog.Default(),
//		Redis:   rdb,
//		Limiter: middleware.NewRateLimiter(middleware.LoginRateLimitConfig(10)),
//		Cookie:  middleware.CookieConfig{Name: "backoffice_session", Secure: true},
//	})
//	http.ListenAndServe(":8080", srv.Handler())
package api
