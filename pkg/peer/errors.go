package peer

import (
    "errors"
    "fmt"
)

// ErrorClass groups failures by where they happen in the pipeline.
type ErrorClass int

const (
    ClassConstruction ErrorClass = iota
    ClassConnect
    ClassFraming
    ClassUnsupported
    ClassTransfer
)

func (c ErrorClass) String() string {
    switch c {
    case ClassConstruction:
        return "construction"
    case ClassConnect:
        return "connect"
    case ClassFraming:
        return "framing"
    case ClassUnsupported:
        return "unsupported"
    case ClassTransfer:
        return "transfer"
    default:
        return "unknown"
    }
}

var (
    // ErrConstruction is an unresolvable or malformed specifier node.
    ErrConstruction = errors.New("construction error")
    // ErrConnectFailure is a transport-level failure to establish a Peer.
    ErrConnectFailure = errors.New("connect failure")
    // ErrFramingViolation is raised by ReadDebt under the Error policy.
    ErrFramingViolation = errors.New("framing violation")
    // ErrUnsupportedOperation is e.g. a write into a read-only broadcast.
    ErrUnsupportedOperation = errors.New("unsupported operation")
    // ErrTransfer is a generic failure while copying.
    ErrTransfer = errors.New("transfer error")
)

func (c ErrorClass) sentinel() error {
    switch c {
    case ClassConstruction:
        return ErrConstruction
    case ClassConnect:
        return ErrConnectFailure
    case ClassFraming:
        return ErrFramingViolation
    case ClassUnsupported:
        return ErrUnsupportedOperation
    default:
        return ErrTransfer
    }
}

// ClassifiedError wraps an error with its class and the operation that failed.
// errors.Is matches both the class sentinel and the wrapped error.
type ClassifiedError struct {
    Class ErrorClass
    Op    string
    Err   error
}

func (e *ClassifiedError) Error() string {
    if e.Err == nil { return fmt.Sprintf("%s: %s", e.Op, e.Class.sentinel()) }
    return fmt.Sprintf("%s: %s: %v", e.Op, e.Class.sentinel(), e.Err)
}

func (e *ClassifiedError) Unwrap() []error {
    if e.Err == nil { return []error{e.Class.sentinel()} }
    return []error{e.Class.sentinel(), e.Err}
}

func classify(c ErrorClass, op string, err error) error {
    var ce *ClassifiedError
    if errors.As(err, &ce) && ce.Class == c { return err }
    return &ClassifiedError{Class: c, Op: op, Err: err}
}

func Construction(op string, err error) error { return classify(ClassConstruction, op, err) }
func Connect(op string, err error) error      { return classify(ClassConnect, op, err) }
func Framing(op string, err error) error      { return classify(ClassFraming, op, err) }
func Unsupported(op string) error             { return &ClassifiedError{Class: ClassUnsupported, Op: op} }
func Transfer(op string, err error) error     { return classify(ClassTransfer, op, err) }

// Constructionf builds a construction error from a message.
func Constructionf(op, format string, args ...any) error {
    return &ClassifiedError{Class: ClassConstruction, Op: op, Err: fmt.Errorf(format, args...)}
}

// ClassOf reports the class of err, or ClassTransfer if it carries none.
func ClassOf(err error) ErrorClass {
    var ce *ClassifiedError
    if errors.As(err, &ce) { return ce.Class }
    return ClassTransfer
}

type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err as ending the producing side itself (e.g. a listener that
// cannot bind). A fatal item is always the last item of a stream.
func Fatal(err error) error {
    if err == nil || IsFatal(err) { return err }
    return &fatalError{err: err}
}

// IsFatal reports whether err was marked with Fatal.
func IsFatal(err error) bool {
    var fe *fatalError
    return errors.As(err, &fe)
}
