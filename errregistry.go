package dbus

import (
	"errors"
	"fmt"
	"sync"
)

// Standard errors defined by the DBus specification. A [CallError]
// with the same Name matches these errors with [errors.Is],
// regardless of its Detail.
var (
	ErrFailed              = CallError{Name: "org.freedesktop.DBus.Error.Failed"}
	ErrNoMemory            = CallError{Name: "org.freedesktop.DBus.Error.NoMemory"}
	ErrServiceUnknown      = CallError{Name: "org.freedesktop.DBus.Error.ServiceUnknown"}
	ErrNameHasNoOwner      = CallError{Name: "org.freedesktop.DBus.Error.NameHasNoOwner"}
	ErrNoReply             = CallError{Name: "org.freedesktop.DBus.Error.NoReply"}
	ErrIOError             = CallError{Name: "org.freedesktop.DBus.Error.IOError"}
	ErrBadAddress          = CallError{Name: "org.freedesktop.DBus.Error.BadAddress"}
	ErrNotSupported        = CallError{Name: "org.freedesktop.DBus.Error.NotSupported"}
	ErrLimitsExceeded      = CallError{Name: "org.freedesktop.DBus.Error.LimitsExceeded"}
	ErrAccessDenied        = CallError{Name: "org.freedesktop.DBus.Error.AccessDenied"}
	ErrAuthFailed          = CallError{Name: "org.freedesktop.DBus.Error.AuthFailed"}
	ErrTimeout             = CallError{Name: "org.freedesktop.DBus.Error.Timeout"}
	ErrDisconnected        = CallError{Name: "org.freedesktop.DBus.Error.Disconnected"}
	ErrInvalidArgs         = CallError{Name: "org.freedesktop.DBus.Error.InvalidArgs"}
	ErrFileNotFound        = CallError{Name: "org.freedesktop.DBus.Error.FileNotFound"}
	ErrFileExists          = CallError{Name: "org.freedesktop.DBus.Error.FileExists"}
	ErrUnknownMethod       = CallError{Name: "org.freedesktop.DBus.Error.UnknownMethod"}
	ErrUnknownObject       = CallError{Name: "org.freedesktop.DBus.Error.UnknownObject"}
	ErrUnknownInterface    = CallError{Name: "org.freedesktop.DBus.Error.UnknownInterface"}
	ErrUnknownProperty     = CallError{Name: "org.freedesktop.DBus.Error.UnknownProperty"}
	ErrPropertyReadOnly    = CallError{Name: "org.freedesktop.DBus.Error.PropertyReadOnly"}
	ErrMatchRuleNotFound   = CallError{Name: "org.freedesktop.DBus.Error.MatchRuleNotFound"}
	ErrMatchRuleInvalid    = CallError{Name: "org.freedesktop.DBus.Error.MatchRuleInvalid"}
	ErrInvalidSignature    = CallError{Name: "org.freedesktop.DBus.Error.InvalidSignature"}
	ErrInconsistentMessage = CallError{Name: "org.freedesktop.DBus.Error.InconsistentMessage"}
	ErrObjectPathInUse     = CallError{Name: "org.freedesktop.DBus.Error.ObjectPathInUse"}
)

var standardErrors = []CallError{
	ErrFailed, ErrNoMemory, ErrServiceUnknown, ErrNameHasNoOwner,
	ErrNoReply, ErrIOError, ErrBadAddress, ErrNotSupported,
	ErrLimitsExceeded, ErrAccessDenied, ErrAuthFailed, ErrTimeout,
	ErrDisconnected, ErrInvalidArgs, ErrFileNotFound, ErrFileExists,
	ErrUnknownMethod, ErrUnknownObject, ErrUnknownInterface,
	ErrUnknownProperty, ErrPropertyReadOnly, ErrMatchRuleNotFound,
	ErrMatchRuleInvalid, ErrInvalidSignature, ErrInconsistentMessage,
	ErrObjectPathInUse,
}

// Is reports whether target is a CallError with the same name as e
// and no detail.
func (e CallError) Is(target error) bool {
	t, ok := target.(CallError)
	return ok && t.Detail == "" && t.Name == e.Name
}

// An ErrorRegistry maps between DBus error names and Go errors.
//
// Error replies received from peers are converted to registered Go
// errors by [Message.Err], and Go errors are converted to DBus error
// names by [NewMethodErrorFrom]. An ErrorRegistry is safe for
// concurrent use.
type ErrorRegistry struct {
	mu     sync.RWMutex
	byName map[string]error
	// order is the registered errors in registration order, for
	// reverse lookups.
	order []registeredError
}

type registeredError struct {
	name string
	err  error
}

// NewErrorRegistry returns a registry with the standard DBus errors
// registered.
func NewErrorRegistry() *ErrorRegistry {
	ret := &ErrorRegistry{byName: map[string]error{}}
	for _, e := range standardErrors {
		ret.register(e.Name, e)
	}
	return ret
}

// Register associates the DBus error name with err.
//
// It is an error to register an invalid error name, or a name that
// is already registered.
func (r *ErrorRegistry) Register(name string, err error) error {
	if err == nil {
		return fmt.Errorf("registering %s: %w", name, errNilError)
	}
	if err := validateErrorName(name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("error name %s is already registered", name)
	}
	r.register(name, err)
	return nil
}

var errNilError = errors.New("nil error")

func (r *ErrorRegistry) register(name string, err error) {
	if r.byName == nil {
		r.byName = map[string]error{}
	}
	r.byName[name] = err
	r.order = append(r.order, registeredError{name, err})
}

// Lookup returns the error registered for the DBus error name.
func (r *ErrorRegistry) Lookup(name string) (error, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	err, ok := r.byName[name]
	return err, ok
}

// NameOf returns the DBus error name for err: the name of the first
// registered error that err matches according to [errors.Is], or the
// name carried by a [CallError] within err's tree.
func (r *ErrorRegistry) NameOf(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, reg := range r.order {
		if errors.Is(err, reg.err) {
			return reg.name, true
		}
	}
	var ce CallError
	if errors.As(err, &ce) {
		return ce.Name, true
	}
	return "", false
}

// Err returns the error carried by m, if m is an error reply. It
// returns nil for all other message types.
//
// If reg has an error registered for m's error name, the returned
// error wraps the registered error. Otherwise the returned error is a
// [CallError]. reg may be nil.
func (m *Message) Err(reg *ErrorRegistry) error {
	if m.typ != ErrorMessage {
		return nil
	}
	name := m.ErrorName()
	var detail string
	if len(m.body) > 0 {
		if s, ok := m.body[0].(String); ok {
			detail = string(s)
		}
	}
	if reg != nil {
		if err, ok := reg.Lookup(name); ok {
			if _, isCall := err.(CallError); isCall {
				return CallError{name, detail}
			}
			if detail == "" {
				return err
			}
			return fmt.Errorf("%w: %s", err, detail)
		}
	}
	return CallError{name, detail}
}

// NewMethodErrorFrom returns an error reply to call that describes
// err. The error name is found in reg, and defaults to
// [ErrFailed]'s name if err is not registered. If reg is nil, only
// [CallError] names are used.
func NewMethodErrorFrom(call *Message, reg *ErrorRegistry, err error) (*Message, error) {
	name := ErrFailed.Name
	var ce CallError
	isCall := errors.As(err, &ce)
	if reg != nil {
		if n, ok := reg.NameOf(err); ok {
			name = n
		}
	} else if isCall {
		name = ce.Name
	}
	detail := err.Error()
	if isCall {
		detail = ce.Detail
	}
	return NewMethodError(call, name, "%s", detail)
}
