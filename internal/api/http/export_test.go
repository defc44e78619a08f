package http

// SetMaxWeightsBody lowers the /weights body limit for a test and returns a
// func restoring it.
func SetMaxWeightsBody(n int64) func() {
	prev := maxWeightsBody
	maxWeightsBody = n
	return func() { maxWeightsBody = prev }
}
