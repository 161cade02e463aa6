// Package middleware exposes the HTTP middleware adapter that protects
// admin routes with authgate access tokens.
//
// [Guard] reads the Authorization header, calls Engine.ValidateAccess, and
// injects the validated identity into the request context. All rejections
// are a uniform 401 with no detail about why the token failed.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; all decisions are delegated to
// ValidateAccess, which is purely local and never touches Redis.
package middleware
