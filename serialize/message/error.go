package message

import "errors"

var ErrTruncatedInput = errors.New("truncated input")

var ErrCommandTooLong = errors.New("command longer than 12 bytes")

var ErrBadMagic = errors.New("bad network magic")

var ErrOversizedPayload = errors.New("payload exceeds the size ceiling")

var ErrChecksumMismatch = errors.New("checksum mismatch")

var ErrMalformedPayload = errors.New("malformed payload")
