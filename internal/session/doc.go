// Package session connects to the mail accounts in the configuration.
//
// A [*Session] turns a [*config.Account] into a secure channel. It takes
// care of the STARTTLS preamble for accounts that need one. It also
// implements the interactive client certificate selection protocol by
// asking an [securechannel.AliasSelector] to choose the certificate and
// by persisting the choice through an [AliasSaver].
package session
