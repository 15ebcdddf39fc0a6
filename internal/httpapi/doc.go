// Package httpapi exposes the matching service as a JSON API over gin.
//
// Errors are returned in a single envelope:
//
//	{"error": {"message": "...", "code": "not_found", "request_id": "..."}}
//
// Every response carries an X-Request-ID header.
package httpapi
