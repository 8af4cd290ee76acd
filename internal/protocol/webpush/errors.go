package webpush

import "errors"

type Kind int

const (
	MalformedRecord Kind = iota + 1
	KeyAgreementFailure
	AuthenticationFailure
)

func (k Kind) String() string {
	switch k {
	case MalformedRecord:
		return "malformed record"
	case KeyAgreementFailure:
		return "key agreement failure"
	case AuthenticationFailure:
		return "authentication failure"
	}
	return "unknown"
}

// DecryptError is returned by every failure path of Decrypt and ParseRecord.
// Reason is a fixed description for logs; it never carries key or
// plaintext bytes.
type DecryptError struct {
	Kind   Kind
	Reason string
}

func (e *DecryptError) Error() string {
	if e.Reason == "" {
		return "webpush: " + e.Kind.String()
	}
	return "webpush: " + e.Kind.String() + ": " + e.Reason
}

// Is matches any DecryptError of the same Kind, so the sentinels below work
// with errors.Is.
func (e *DecryptError) Is(target error) bool {
	t, ok := target.(*DecryptError)
	return ok && t.Reason == "" && t.Kind == e.Kind
}

var (
	ErrMalformedRecord = &DecryptError{Kind: MalformedRecord}
	ErrKeyAgreement    = &DecryptError{Kind: KeyAgreementFailure}
	// ErrAuthentication covers both tag mismatch and invalid padding.
	ErrAuthentication = &DecryptError{Kind: AuthenticationFailure}
)

func malformed(reason string) error {
	return &DecryptError{Kind: MalformedRecord, Reason: reason}
}

// KindOf extracts the Kind of err, or 0 when err is not a DecryptError.
func KindOf(err error) Kind {
	var de *DecryptError
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}
