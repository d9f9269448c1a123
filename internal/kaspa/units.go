package kaspa

import "math"

// SompiPerKAS is the number of sompi, the smallest Kaspa unit, in one KAS.
const SompiPerKAS = 100_000_000

// KASToSompi converts a KAS amount to sompi for the wallet, which only
// accepts whole sompi. The result is floored, never rounded up: overpaying
// by a fraction of a sompi is an overspend, underpaying is not.
func KASToSompi(kas float64) int64 {
	return int64(math.Floor(kas * SompiPerKAS))
}

// SompiToKAS converts a sompi amount back to KAS.
func SompiToKAS(sompi int64) float64 {
	return float64(sompi) / SompiPerKAS
}
