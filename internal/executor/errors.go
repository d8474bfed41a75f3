package executor

// ProgrammerError marks a fatal, non-containable failure: the Go
// equivalent of the distilled spec's whitelisted exception kinds
// (AttributeError/ImportError/TypeError/ValueError) that always propagate
// because retrying would mask a real bug. Hosts should wrap a type
// assertion failure, a missing required config field, or a malformed
// pass implementation in this type.
type ProgrammerError struct{ Err error }

func (e *ProgrammerError) Error() string { return e.Err.Error() }
func (e *ProgrammerError) Unwrap() error { return e.Err }

// PassFailureError marks a typed pass-execution failure (the Go analogue
// of OlivePassException): the pass ran but could not produce a valid
// output for this search point. Always contained to PRUNED, logged at
// error level, regardless of whether search is enabled.
type PassFailureError struct{ Err error }

func (e *PassFailureError) Error() string { return e.Err.Error() }
func (e *PassFailureError) Unwrap() error { return e.Err }
