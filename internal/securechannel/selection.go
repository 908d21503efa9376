package securechannel

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/mailtls/mailtls/internal/model"
)

// ErrNoMatchingAlias indicates that the credential store contains no
// identity acceptable for the server.
var ErrNoMatchingAlias = errors.New("securechannel: no matching client certificate")

// ErrSelectionCancelled indicates that the human did not choose an alias.
var ErrSelectionCancelled = errors.New("securechannel: client certificate selection cancelled")

// AliasSelector lets a human choose the client certificate.
type AliasSelector interface {
	// SelectAlias returns one of the candidates or an error. The
	// request describes what the server asked for.
	SelectAlias(ctx context.Context, request *InteractiveSelectionRequiredError, candidates []string) (string, error)
}

// AliasSelectorFunc adapts a func to the [AliasSelector] interface.
type AliasSelectorFunc func(ctx context.Context, request *InteractiveSelectionRequiredError, candidates []string) (string, error)

var _ AliasSelector = AliasSelectorFunc(nil)

// SelectAlias implements AliasSelector.
func (fx AliasSelectorFunc) SelectAlias(
	ctx context.Context, request *InteractiveSelectionRequiredError, candidates []string) (string, error) {
	return fx(ctx, request, candidates)
}

// ResolveAlias enumerates the aliases matching the request and asks the
// selector to choose one of them.
func ResolveAlias(ctx context.Context, store model.CredentialStore,
	request *InteractiveSelectionRequiredError, selector AliasSelector) (string, error) {
	if store == nil {
		return "", ErrNoCredentialStore
	}
	candidates, err := store.MatchingAliases(request.KeyTypes, request.RawIssuers)
	if err != nil {
		return "", err
	}
	if len(candidates) <= 0 {
		return "", fmt.Errorf("%w for %s", ErrNoMatchingAlias, request.Destination)
	}
	alias, err := selector.SelectAlias(ctx, request, candidates)
	if err != nil {
		return "", err
	}
	if alias == "" {
		return "", ErrSelectionCancelled
	}
	if !slices.Contains(candidates, alias) {
		return "", fmt.Errorf("%w: %q is not a candidate", ErrNoMatchingAlias, alias)
	}
	return alias, nil
}

// AttemptFunc performs a single connection attempt using mode.
type AttemptFunc func(ctx context.Context, mode AliasMode) (*SecureConn, error)

// RunWithSelection runs attempt using mode. When mode is interactive and
// the attempt fails with [*InteractiveSelectionRequiredError], it resolves
// the alias using store and selector and runs a second attempt using the
// chosen alias, or without a client certificate if the server did not ask
// for one. It returns the alias used by the last attempt, which the caller
// may want to persist.
func RunWithSelection(ctx context.Context, mode AliasMode, store model.CredentialStore,
	selector AliasSelector, logger model.Logger, attempt AttemptFunc) (*SecureConn, string, error) {
	sconn, err := attempt(ctx, mode)
	var request *InteractiveSelectionRequiredError
	if mode.Kind != AliasModeInteractive || !errors.As(err, &request) {
		return sconn, mode.Alias, err
	}
	logger = model.ValidLoggerOrDefault(logger)
	ctx = WithInteractiveSelection(ctx, false)
	if !request.CertificateRequested {
		logger.Infof("securechannel: %s does not need a client certificate; retrying", request.Destination)
		sconn, err := attempt(ctx, NoClientCertificate())
		return sconn, "", err
	}
	alias, err := ResolveAlias(ctx, store, request, selector)
	if err != nil {
		return nil, "", err
	}
	logger.Infof("securechannel: retrying %s with client certificate %q", request.Destination, alias)
	sconn, err = attempt(ctx, ExplicitAlias(alias))
	if err != nil {
		return nil, "", err
	}
	return sconn, alias, nil
}

// OpenDirectWithSelection is like [*Builder.OpenDirect] but implements the
// interactive selection protocol using [RunWithSelection].
func (b *Builder) OpenDirectWithSelection(ctx context.Context, dest Destination,
	alias string, selector AliasSelector) (*SecureConn, string, error) {
	mode := SelectAliasMode(InteractiveSelectionRequired(ctx), alias)
	return RunWithSelection(ctx, mode, b.CredentialStore, selector, b.Logger,
		func(ctx context.Context, mode AliasMode) (*SecureConn, error) {
			return b.OpenDirectWithMode(ctx, dest, mode)
		})
}
