// Package netxlite contains the network primitives we use to reach
// mail servers: a TCP dialer and a TLS handshaker.
//
// Both primitives are built by composing decorators. The innermost
// layer talks to the standard library; the outer layers add logging
// and wrap errors into *ErrWrapper, which carries a failure string
// (e.g., "connection_refused") and the failed operation (e.g.,
// "connect"). Callers can use the failure and the operation to decide
// whether an error is worth retrying.
package netxlite
