// Package backend is the client for the back-office REST API: login, user
// records with their permission and fund trees, the fund/class listing, and
// opaque page-data fetches.
//
//	client, err := backend.New(backend.Config{BaseURL: "https://api.example.com"})
//	token, rec, err := client.Authenticate(ctx, "ana@example.com", "secret")
//	authed := client.WithToken(token)
//	target, err := authed.GetUser(ctx, 12)
//
// Non-2xx responses become *APIError; 401 and 404 unwrap to ErrUnauthorized
// and ErrNotFound.
package backend
