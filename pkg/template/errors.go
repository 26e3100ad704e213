package template

import "errors"

var (
	// ErrPhotoDecode aborts a render; no partial poster is produced.
	ErrPhotoDecode = errors.New("photo decode failed")

	// ErrLogoDecode is recoverable: the poster is rendered without the logo
	// and its date header.
	ErrLogoDecode = errors.New("logo decode failed")

	// ErrInvalidYear rejects years outside 1..9999.
	ErrInvalidYear = errors.New("invalid year")
)
