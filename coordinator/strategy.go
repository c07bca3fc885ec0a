// coordinator/strategy.go
package coordinator

import (
	"context"

	"github.com/deploymenttheory/go-api-credential-dispatcher/credentials"
)

// Operation names a credential operation.
type Operation string

const (
	OperationGenerate Operation = "generate"
	OperationRenew    Operation = "renew"
	OperationRefresh  Operation = "refresh"
)

// Generator acquires a brand-new token set from scratch, for example with stored client
// credentials. It is only used while the coordinator is connected.
type Generator interface {
	Generate(ctx context.Context, store *credentials.Store) error
}

// Renewer obtains a new access token using the refresh token.
type Renewer interface {
	Renew(ctx context.Context, store *credentials.Store) error
}

// Refresher re-establishes the refresh token itself.
type Refresher interface {
	Refresh(ctx context.Context, store *credentials.Store) error
}

// ErrorHandler observes errors right before they are returned to a caller. Its own error is
// logged and otherwise ignored: it cannot change the outcome of the call.
type ErrorHandler interface {
	HandleError(ctx context.Context, err error, call *Call) error
}

// GenerateFunc adapts a function to Generator.
type GenerateFunc func(ctx context.Context, store *credentials.Store) error

func (f GenerateFunc) Generate(ctx context.Context, store *credentials.Store) error {
	return f(ctx, store)
}

// RenewFunc adapts a function to Renewer.
type RenewFunc func(ctx context.Context, store *credentials.Store) error

func (f RenewFunc) Renew(ctx context.Context, store *credentials.Store) error {
	return f(ctx, store)
}

// RefreshFunc adapts a function to Refresher.
type RefreshFunc func(ctx context.Context, store *credentials.Store) error

func (f RefreshFunc) Refresh(ctx context.Context, store *credentials.Store) error {
	return f(ctx, store)
}

// ErrorHandlerFunc adapts a function to ErrorHandler.
type ErrorHandlerFunc func(ctx context.Context, err error, call *Call) error

func (f ErrorHandlerFunc) HandleError(ctx context.Context, err error, call *Call) error {
	return f(ctx, err, call)
}

// Strategies is the set of capabilities supplied by the embedder. A nil field means the
// capability is not available.
type Strategies struct {
	Generator    Generator
	Renewer      Renewer
	Refresher    Refresher
	ErrorHandler ErrorHandler
}
