// Package middleware adapts authflow session validation to net/http.
//
// [Guard] reads the Authorization bearer credential, validates it through the
// engine and stores the resulting claims on the request context. Handlers read
// them back with [ClaimsFromContext]. All decisions are the engine's; this
// package only translates them into 401 responses.
package middleware
