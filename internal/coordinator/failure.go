package coordinator

import "strings"

// Failure is the explicit result of a step that did not succeed. Kind is a
// sentinel from the caller's error taxonomy, Detail a human readable reason
// and Cause the underlying error, if any. errors.Is matches both Kind and
// Cause.
type Failure struct {
	Step   string
	Kind   error
	Detail string
	Cause  error
}

// Fail builds a Failure; the orchestrator fills in the step name.
func Fail(kind error, detail string, cause error) *Failure {
	return &Failure{Kind: kind, Detail: detail, Cause: cause}
}

func (f *Failure) Error() string {
	parts := make([]string, 0, 4)
	if f.Step != "" {
		parts = append(parts, "step "+f.Step)
	}
	if f.Kind != nil {
		parts = append(parts, f.Kind.Error())
	}
	if f.Detail != "" {
		parts = append(parts, f.Detail)
	}
	if f.Cause != nil {
		parts = append(parts, f.Cause.Error())
	}
	if len(parts) == 0 {
		return "step failed"
	}
	return strings.Join(parts, ": ")
}

func (f *Failure) Unwrap() []error {
	errs := make([]error, 0, 2)
	if f.Kind != nil {
		errs = append(errs, f.Kind)
	}
	if f.Cause != nil {
		errs = append(errs, f.Cause)
	}
	return errs
}

