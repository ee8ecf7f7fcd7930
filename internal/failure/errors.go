package failure

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind classifies an error returned by the store, the expansion backend or
// the configuration layer.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindTransport
	KindDecode
	KindResponseShape
	KindParse
	KindInvalidRecord
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	case KindResponseShape:
		return "response_shape"
	case KindParse:
		return "parse"
	case KindInvalidRecord:
		return "invalid_record"
	default:
		return "unknown"
	}
}

type ErrConfig struct {
	error
}

func NewErrConfig(err error) *ErrConfig {
	return &ErrConfig{errors.Wrap(err, "invalid configuration")}
}

func (e *ErrConfig) Unwrap() error { return e.error }

// ErrTransport is a network or HTTP level failure against the store or the
// expansion backend. StatusCode is zero when no response was received.
type ErrTransport struct {
	error
	StatusCode int
}

func NewErrTransport(op string, err error) *ErrTransport {
	return &ErrTransport{error: errors.Wrap(err, op)}
}

func NewErrUnexpectedStatus(op string, statusCode int, body []byte) *ErrTransport {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512] + "..."
	}
	return &ErrTransport{
		error:      fmt.Errorf("%s: unexpected status %d: %s", op, statusCode, msg),
		StatusCode: statusCode,
	}
}

func (e *ErrTransport) Unwrap() error { return e.error }

type ErrDecode struct {
	error
}

func NewErrDecode(op string, err error) *ErrDecode {
	return &ErrDecode{errors.Wrapf(err, "%s: malformed record list", op)}
}

func (e *ErrDecode) Unwrap() error { return e.error }

// ErrResponseShape reports a field missing from an otherwise well-formed response.
type ErrResponseShape struct {
	error
	Field string
}

func NewErrResponseShape(field string) *ErrResponseShape {
	return &ErrResponseShape{error: fmt.Errorf("response is missing %s", field), Field: field}
}

// NewErrResponseShapeWithReason keeps the explanation the backend sent in place
// of the missing field.
func NewErrResponseShapeWithReason(field, reason string) *ErrResponseShape {
	return &ErrResponseShape{error: fmt.Errorf("response is missing %s: %s", field, reason), Field: field}
}

func (e *ErrResponseShape) Unwrap() error { return e.error }

type ErrParse struct {
	error
}

func NewErrParse(what string, err error) *ErrParse {
	return &ErrParse{errors.Wrapf(err, "%s is not valid JSON", what)}
}

func (e *ErrParse) Unwrap() error { return e.error }

type ErrInvalidRecord struct {
	error
}

func NewErrInvalidRecord(reason string) *ErrInvalidRecord {
	return &ErrInvalidRecord{fmt.Errorf("invalid record: %s", reason)}
}

func (e *ErrInvalidRecord) Unwrap() error { return e.error }

// KindOf returns the taxonomy member err belongs to, looking through wrapping.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var (
		configErr    *ErrConfig
		transportErr *ErrTransport
		decodeErr    *ErrDecode
		shapeErr     *ErrResponseShape
		parseErr     *ErrParse
		recordErr    *ErrInvalidRecord
	)

	switch {
	case errors.As(err, &configErr):
		return KindConfig
	case errors.As(err, &transportErr):
		return KindTransport
	case errors.As(err, &decodeErr):
		return KindDecode
	case errors.As(err, &shapeErr):
		return KindResponseShape
	case errors.As(err, &parseErr):
		return KindParse
	case errors.As(err, &recordErr):
		return KindInvalidRecord
	default:
		return KindUnknown
	}
}

func IsTransport(err error) bool { return KindOf(err) == KindTransport }

func IsResponseShape(err error) bool { return KindOf(err) == KindResponseShape }

func IsParse(err error) bool { return KindOf(err) == KindParse }

func IsInvalidRecord(err error) bool { return KindOf(err) == KindInvalidRecord }
