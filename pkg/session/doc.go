// Package session holds the authenticated state of one dashboard user.
//
// State changes go through a single entry point, Store.Dispatch, which runs
// a reducer over typed actions. Login populates the token, user, permission
// tree and fund access in one step; an incomplete login leaves nothing
// behind. Manager drives the lifecycle against the backend (login, restore,
// logout, implicit logout on expiry or 401) and persists the bearer token
// through a TokenStore. Registry maps gateway session ids to managers.
package session
