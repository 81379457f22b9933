// Package httpmw holds the middleware shared by the public and ops
// listeners: request ids, client IP resolution, panic recovery, security
// headers, request-scoped logging, and span annotation.
//
// Query strings and request headers other than the ones named here are
// kept out of logs.
package httpmw
