package results

// OperationResult carries either a domain success or a domain failure.
// Infrastructure errors travel beside it as a plain error.
type OperationResult[S any, F any] struct {
	Success *S
	Failure *F
}

// SuccessResult wraps a success value.
func SuccessResult[S any, F any](s S) OperationResult[S, F] {
	return OperationResult[S, F]{Success: &s}
}

// FailureResult wraps a failure value.
func FailureResult[S any, F any](f F) OperationResult[S, F] {
	return OperationResult[S, F]{Failure: &f}
}

func (r OperationResult[S, F]) IsSuccess() bool { return r.Success != nil }

func (r OperationResult[S, F]) IsFailure() bool { return r.Failure != nil }

// Map converts the success payload while keeping a failure untouched.
func Map[S any, F any, T any](r OperationResult[S, F], fn func(S) T) OperationResult[T, F] {
	if r.Failure != nil {
		return OperationResult[T, F]{Failure: r.Failure}
	}
	if r.Success == nil {
		return OperationResult[T, F]{}
	}
	return SuccessResult[T, F](fn(*r.Success))
}
