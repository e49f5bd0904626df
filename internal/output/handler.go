package output

import (
	"context"
	"fmt"

	"filepipe/internal/source"
)

// WriteRequest is everything a handler needs to deliver one file's worth
// of records to one destination.
type WriteRequest struct {
	Destination source.OutputDestination
	Content     []byte
	FileName    string
	SourceID    string
	SourceName  string
	Format      string
}

// Handler delivers content to one destination type.
type Handler interface {
	CanHandle(destinationType string) bool
	Write(ctx context.Context, req WriteRequest) error
}

// HandlerRegistry resolves the handler for a destination type.
type HandlerRegistry struct {
	handlers []Handler
}

func NewHandlerRegistry(handlers ...Handler) *HandlerRegistry {
	return &HandlerRegistry{handlers: handlers}
}

func (r *HandlerRegistry) Register(h Handler) {
	r.handlers = append(r.handlers, h)
}

func (r *HandlerRegistry) For(destinationType string) (Handler, error) {
	for _, h := range r.handlers {
		if h.CanHandle(destinationType) {
			return h, nil
		}
	}
	return nil, fmt.Errorf("no output handler for destination type %q", destinationType)
}
