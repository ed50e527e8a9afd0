// Package middleware provides HTTP middleware for the MCP Minecraft server:
// request metrics, security headers, CORS and request size limits.
package middleware
