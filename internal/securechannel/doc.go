// Package securechannel establishes TLS channels to mail endpoints.
//
// A [*Builder] opens a new TLS connection ([*Builder.OpenDirect]) or
// upgrades an existing plaintext connection after STARTTLS
// ([*Builder.UpgradeInPlace]). The client certificate, if any, is chosen
// according to an [AliasMode]:
//
// - with [NoClientCertificate] we never present a certificate;
//
// - with [ExplicitAlias] we present the identity the credential store
// holds under the given alias, or nothing if there is no such alias;
//
// - with [InteractiveAbort] we abort the handshake as soon as the server
// asks for a certificate and return an [*InteractiveSelectionRequiredError]
// containing what a human needs to pick an alias.
//
// The TLS stack asks for the client certificate synchronously in the
// middle of the handshake, so there is no way to wait for a human there.
// Callers set the interactive mode using [WithInteractiveSelection],
// catch the error, let the user choose, then retry with [ExplicitAlias].
// [*Builder.OpenDirectWithSelection] implements this two-phase protocol.
package securechannel
