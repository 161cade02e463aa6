// Package httpapi mounts the admin authentication endpoints on an
// http.ServeMux:
//
//	POST /auth/login    JSON {"email":"...", "password":"..."}
//	POST /auth/refresh  rotates tokens via the rt cookie
//	POST /auth/logout   revokes the family behind the rt cookie
//
// The refresh token travels only in the hardened "rt" cookie, scoped to
// /auth so it never rides along on ordinary admin requests. Every
// authentication failure collapses to the same 401 body; throttle hits are
// 429 and storage outages 503, with no further detail in either.
package httpapi
