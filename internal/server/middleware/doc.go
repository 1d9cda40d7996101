// Package middleware provides HTTP middleware for the kubegrant server:
// security headers, CORS handling for the browser frontend, and prometheus
// request metrics.
package middleware
