package apperror

// Result is the transport-neutral outcome of an operation.
type Result[T any] struct {
	OK        bool   `json:"ok"`
	Value     T      `json:"value,omitempty"`
	Kind      Kind   `json:"kind,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func NewResult[T any](value T, err error) Result[T] {
	if err == nil {
		return Result[T]{OK: true, Value: value}
	}

	return Result[T]{
		OK:        false,
		Kind:      KindOf(err),
		Reason:    ReasonOf(err),
		Message:   err.Error(),
		Retryable: IsRetryable(err),
	}
}
