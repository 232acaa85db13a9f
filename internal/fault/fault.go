package fault

import "errors"

// Kind classifies an error by how the actor boundary recovers from it.
type Kind int

const (
	Unknown Kind = iota
	Validation
	Hardware
	Protocol
	Resource
	Timeout
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Hardware:
		return "hardware"
	case Protocol:
		return "protocol"
	case Resource:
		return "resource"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is a classified sentinel. Callers wrap it with fmt.Errorf("%w: ...")
// to attach detail and match it later with errors.Is.
type Error struct {
	Kind Kind
	Code string
}

// New returns a sentinel of the given kind.
func New(kind Kind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

func (e *Error) Error() string { return e.Code }

// KindOf reports the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
