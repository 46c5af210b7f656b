// Package httpapi is the JSON HTTP surface of the authflow server.
//
// Routes live under /api/v1. Request bodies are decoded into explicit request
// types and checked for required fields before the engine sees them; engine
// errors are mapped to status codes by [authflow.KindOf].
package httpapi
