package model

//
// Server certificate trust
//

// TrustEvaluator decides whether the certificate chain presented by
// a server is acceptable for a specific destination.
type TrustEvaluator interface {
	// EvaluateServerChain returns nil when the DER-encoded chain in
	// rawCerts (leaf first) is acceptable and an error otherwise.
	EvaluateServerChain(rawCerts [][]byte) error
}

// TrustEvaluatorProvider returns a [TrustEvaluator] scoped to a
// specific host and port.
type TrustEvaluatorProvider interface {
	TrustEvaluator(host string, port int) (TrustEvaluator, error)
}
