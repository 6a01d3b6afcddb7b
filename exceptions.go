package melsec

import "fmt"

// EndCodeError is the concrete protocol error surfaced when a PLC response
// carries a non-zero end-code. It carries the raw code plus whatever name
// and description the Error Code Catalog has registered for it, exactly as
// described in the error-propagation rule: the code, the registered name
// (when known) and the registered description (when known) are appended to
// a single protocol-error message, and the underlying response bytes are
// discarded.
type EndCodeError struct {
	Code        uint16
	Name        string
	Description string
}

var _ Exception = (*EndCodeError)(nil)

// newEndCodeError looks the code up in the global Error Code Catalog and
// builds the surfaced error. It never fails: an unregistered code simply
// carries no name or description.
func newEndCodeError(code uint16) *EndCodeError {
	name, _ := ErrorCodeName(code)
	desc, _ := ErrorCodeDescription(code)
	return &EndCodeError{Code: code, Name: name, Description: desc}
}

func (e *EndCodeError) Error() string {
	switch {
	case e.Name != "" && e.Description != "":
		return fmt.Sprintf("melsec: protocol: end-code 0x%04X (%s): %s", e.Code, e.Name, e.Description)
	case e.Name != "":
		return fmt.Sprintf("melsec: protocol: end-code 0x%04X (%s)", e.Code, e.Name)
	case e.Description != "":
		return fmt.Sprintf("melsec: protocol: end-code 0x%04X: %s", e.Code, e.Description)
	default:
		return fmt.Sprintf("melsec: protocol: end-code 0x%04X", e.Code)
	}
}

// Code satisfies the Exception interface. An end-code error is always a
// protocol-kind failure; the raw 16-bit PLC code is available on the
// EndCodeError value itself for callers that need it.
func (e *EndCodeError) Code() Kind { return KindProtocol }
