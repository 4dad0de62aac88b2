package email

import (
	"errors"
	"fmt"
	"net"
	"net/textproto"
)

// Kind buckets SMTP failures for retry decisions.
type Kind string

const (
	KindAuth       Kind = "auth"
	KindConnection Kind = "connection"
	KindRecipient  Kind = "recipient"
	KindUnknown    Kind = "unknown"
)

// SendError wraps a transport failure with its classification.
type SendError struct {
	Kind Kind
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("smtp %s error: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// IsPermanent reports whether retrying the same message can ever help.
// Bad credentials and rejected recipients do not heal with time.
func IsPermanent(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Kind == KindAuth || se.Kind == KindRecipient
	}
	return false
}

// classifyDial buckets errors from connect+authenticate. SMTP reply
// codes 530-538 cover the authentication family; anything that looks
// like a network failure is connectivity.
func classifyDial(err error) error {
	var tp *textproto.Error
	if errors.As(err, &tp) {
		if tp.Code >= 530 && tp.Code <= 538 {
			return &SendError{Kind: KindAuth, Err: err}
		}
		return &SendError{Kind: KindUnknown, Err: err}
	}
	// Dialing either fails on the wire or in the protocol; with no
	// reply code to go on, the wire is the better guess.
	return &SendError{Kind: KindConnection, Err: err}
}

// classifySend buckets errors from the message transaction itself.
// 550-553 are the recipient-rejection family.
func classifySend(err error) error {
	var tp *textproto.Error
	if errors.As(err, &tp) {
		switch {
		case tp.Code >= 550 && tp.Code <= 553:
			return &SendError{Kind: KindRecipient, Err: err}
		case tp.Code >= 530 && tp.Code <= 538:
			return &SendError{Kind: KindAuth, Err: err}
		}
		return &SendError{Kind: KindUnknown, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return &SendError{Kind: KindConnection, Err: err}
	}
	return &SendError{Kind: KindUnknown, Err: err}
}
