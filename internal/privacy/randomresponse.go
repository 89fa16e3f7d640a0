// Package privacy defines the randomized-response contract compliant clients
// apply before reporting, and the read-time corrections for its output.
//
// The service never sees an unperturbed observation. For every occurrence of a
// tracked boolean event the client reports the true bit with probability
// p = e^eps / (1 + e^eps) and its complement otherwise, then sums the
// perturbed bits into the batch's noisyCount. Injection runs on hardware the
// service does not control, so nothing here re-noises data; these helpers
// exist so the served contract document, the validator's epsilon policy, and
// any downstream debiasing all agree on the same arithmetic.
package privacy

import "math"

// TruthProbability returns p, the probability a compliant client reports an
// occurrence's true bit under randomized response with budget epsilon.
func TruthProbability(epsilon float64) float64 {
	e := math.Exp(epsilon)
	return e / (1 + e)
}

// LikelihoodBound returns e^eps, the maximum factor by which the likelihood of
// any reported value may differ between two inputs differing in one
// occurrence. This is the epsilon-LDP guarantee the contract promises.
func LikelihoodBound(epsilon float64) float64 {
	return math.Exp(epsilon)
}

// Debias converts a randomized-response sum back into an unbiased estimate of
// the true count, given the number of underlying occurrences and the epsilon
// the sum was produced under:
//
//	(sum - (1-p)*n) / (2p - 1)
//
// The estimate can be negative or exceed n on small populations; callers
// report it as-is rather than clamping, since clamping re-biases.
func Debias(noisySum, occurrences int64, epsilon float64) float64 {
	p := TruthProbability(epsilon)
	return (float64(noisySum) - (1-p)*float64(occurrences)) / (2*p - 1)
}
