// Package server implements the stream listener that feeds protocol events
// to per-connection sessions, plus the HTTP API for monitoring and
// management endpoints.
package server
