package mocks

import "github.com/mailtls/mailtls/internal/model"

// TrustEvaluator allows mocking model.TrustEvaluator.
type TrustEvaluator struct {
	MockEvaluateServerChain func(rawCerts [][]byte) error
}

var _ model.TrustEvaluator = &TrustEvaluator{}

// EvaluateServerChain calls MockEvaluateServerChain.
func (te *TrustEvaluator) EvaluateServerChain(rawCerts [][]byte) error {
	return te.MockEvaluateServerChain(rawCerts)
}

// TrustEvaluatorProvider allows mocking model.TrustEvaluatorProvider.
type TrustEvaluatorProvider struct {
	MockTrustEvaluator func(host string, port int) (model.TrustEvaluator, error)
}

var _ model.TrustEvaluatorProvider = &TrustEvaluatorProvider{}

// TrustEvaluator calls MockTrustEvaluator.
func (tp *TrustEvaluatorProvider) TrustEvaluator(host string, port int) (model.TrustEvaluator, error) {
	return tp.MockTrustEvaluator(host, port)
}
