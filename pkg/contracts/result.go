package contracts

// Result is the structured outcome every engine operation returns for
// expected governance-policy conditions. Legitimate=false carries the
// denial reason; it is data, not an error. Programming-contract violations
// (bad basis strings, unknown categories) still surface as Go errors.
type Result struct {
	Legitimate bool           `json:"legitimate"`
	Reason     string         `json:"reason"`
	Data       map[string]any `json:"data,omitempty"`
}

// Legit builds a legitimate result.
func Legit(reason string) Result {
	return Result{Legitimate: true, Reason: reason}
}

// Illegit builds a non-legitimate result carrying the failure reason.
func Illegit(reason string) Result {
	return Result{Legitimate: false, Reason: reason}
}

// WithData attaches a structured payload and returns the result.
func (r Result) WithData(key string, value any) Result {
	if r.Data == nil {
		r.Data = make(map[string]any)
	}
	r.Data[key] = value
	return r
}
