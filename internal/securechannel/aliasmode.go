package securechannel

import (
	"context"
	"fmt"
)

// AliasModeKind is the kind of [AliasMode].
type AliasModeKind int

const (
	// AliasModeNone means that we never present a client certificate.
	AliasModeNone = AliasModeKind(iota)

	// AliasModeExplicit means that we present the certificate stored under an alias.
	AliasModeExplicit

	// AliasModeInteractive means that we abort the handshake to let a human choose.
	AliasModeInteractive
)

// String implements fmt.Stringer.
func (k AliasModeKind) String() string {
	switch k {
	case AliasModeNone:
		return "none"
	case AliasModeExplicit:
		return "explicit"
	case AliasModeInteractive:
		return "interactive"
	default:
		return fmt.Sprintf("AliasModeKind(%d)", int(k))
	}
}

// AliasMode tells the handshake how to supply the client certificate.
type AliasMode struct {
	// Kind is the mode kind.
	Kind AliasModeKind

	// Alias is the credential store alias and is only
	// meaningful when Kind is AliasModeExplicit.
	Alias string
}

// NoClientCertificate returns the [AliasModeNone] mode.
func NoClientCertificate() AliasMode {
	return AliasMode{Kind: AliasModeNone}
}

// ExplicitAlias returns the [AliasModeExplicit] mode for alias.
func ExplicitAlias(alias string) AliasMode {
	return AliasMode{Kind: AliasModeExplicit, Alias: alias}
}

// InteractiveAbort returns the [AliasModeInteractive] mode.
func InteractiveAbort() AliasMode {
	return AliasMode{Kind: AliasModeInteractive}
}

// String implements fmt.Stringer.
func (m AliasMode) String() string {
	if m.Kind == AliasModeExplicit {
		return fmt.Sprintf("explicit(%s)", m.Alias)
	}
	return m.Kind.String()
}

// SelectAliasMode returns the mode for an attempt. The interactive
// selection signal wins over alias, and an empty alias means none.
func SelectAliasMode(interactive bool, alias string) AliasMode {
	switch {
	case interactive:
		return InteractiveAbort()
	case alias != "":
		return ExplicitAlias(alias)
	default:
		return NoClientCertificate()
	}
}

type interactiveSelectionKey struct{}

// WithInteractiveSelection returns a copy of ctx carrying the interactive
// selection signal. Attempts using the returned context select the
// [AliasModeInteractive] mode regardless of the alias.
func WithInteractiveSelection(ctx context.Context, required bool) context.Context {
	return context.WithValue(ctx, interactiveSelectionKey{}, required)
}

// InteractiveSelectionRequired returns whether ctx carries the interactive
// selection signal. The default is false.
func InteractiveSelectionRequired(ctx context.Context) bool {
	required, _ := ctx.Value(interactiveSelectionKey{}).(bool)
	return required
}
