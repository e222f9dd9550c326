// Package transport defines the interface for pluggable request transports.
//
// Each transport (HTTP/WebSocket, gRPC) implements this interface and feeds
// compile requests to the dispatcher. The dispatcher doesn't care how
// requests arrive; it only works with the Transport contract.
package transport

import (
	"context"
	"net/http"

	"github.com/nadzzz/ttsgraph/internal/apperr"
	"github.com/nadzzz/ttsgraph/internal/message"
)

// Handler is a function that compiles an incoming request and returns a result.
// The dispatcher provides this handler to each transport.
type Handler func(ctx context.Context, req *message.CompileRequest) (*message.CompileResult, error)

// Transport is the interface that every transport adapter must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "grpc", "http").
	Name() string

	// Listen starts accepting incoming requests and dispatches them to the handler.
	// It blocks until the context is cancelled.
	Listen(ctx context.Context, handler Handler) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}

// HTTPStatus maps a result to the status code transports report: 200 on
// success, 422 for errors caused by the request, 500 otherwise.
func HTTPStatus(res *message.CompileResult) int {
	if res == nil || !res.Failed() {
		return http.StatusOK
	}
	switch apperr.Kind(res.ErrorKind) {
	case apperr.KindPayload, apperr.KindSection, apperr.KindAsset, apperr.KindConfig:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
