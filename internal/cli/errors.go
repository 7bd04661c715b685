package cli

import (
	"errors"
	"fmt"

	"github.com/osapiref/osapiref/internal/spec"
)

var ErrUsage = errors.New("cli usage error")

// usageError is reported to the user without a stack of wrapping prefixes.
// cause, when set, keeps the underlying error reachable through errors.Is/As.
type usageError struct {
	msg   string
	cause error
}

func newUsageError(msg string) error {
	return usageError{msg: msg}
}

func (e usageError) Error() string {
	return e.msg
}

func (e usageError) Is(target error) bool {
	return target == ErrUsage
}

func (e usageError) Unwrap() error { return e.cause }

// specUsageError maps structured spec errors into friendly messages that
// name the offending document and JSON pointer.
func specUsageError(err error) error {
	var se *spec.SpecError
	if !errors.As(err, &se) {
		return err
	}
	msg := se.Error()
	if se.Location != "" && se.Location != se.JSONPointer {
		msg = fmt.Sprintf("%s\nLocation: %s", msg, se.Location)
	}
	if se.JSONPointer != "" {
		msg = fmt.Sprintf("%s\nPointer: %s", msg, se.JSONPointer)
	}
	return usageError{msg: msg, cause: err}
}
