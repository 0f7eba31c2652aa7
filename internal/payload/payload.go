package payload

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DefaultMaxDecodedBytes caps the size of a decompressed payload
const DefaultMaxDecodedBytes = 64 << 20

// Standard errors
var (
	ErrEncoding    = errors.New("payload: invalid text encoding")
	ErrCompression = errors.New("payload: invalid compressed stream")
)

// EncodingError reports a payload whose text encoding could not be reversed
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("base64 decode failure: %v", e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// Is lets callers match on ErrEncoding
func (e *EncodingError) Is(target error) bool { return target == ErrEncoding }

// CompressionError reports decoded bytes that are not a valid compressed stream
type CompressionError struct {
	Err error
}

func (e *CompressionError) Error() string {
	return fmt.Sprintf("unzip failure: %v", e.Err)
}

func (e *CompressionError) Unwrap() error { return e.Err }

// Is lets callers match on ErrCompression
func (e *CompressionError) Is(target error) bool { return target == ErrCompression }

// Unwrapper reverses the text encoding and compression applied to stored messages
type Unwrapper struct {
	maxDecoded int64
}

// NewUnwrapper creates an unwrapper with the given decompressed size cap.
// A non-positive cap selects DefaultMaxDecodedBytes.
func NewUnwrapper(maxDecoded int64) *Unwrapper {
	if maxDecoded <= 0 {
		maxDecoded = DefaultMaxDecodedBytes
	}
	return &Unwrapper{maxDecoded: maxDecoded}
}

// Unwrap decodes base64 text and decompresses the result.
// Either the full buffer is returned or an error; never a partial result.
func (u *Unwrapper) Unwrap(encoded string) ([]byte, error) {
	compressed, err := decodeText(encoded)
	if err != nil {
		return nil, &EncodingError{Err: err}
	}

	raw, err := u.decompress(compressed)
	if err != nil {
		return nil, &CompressionError{Err: err}
	}

	return raw, nil
}

// Unwrap is a convenience wrapper using the default size cap
func Unwrap(encoded string) ([]byte, error) {
	return NewUnwrapper(0).Unwrap(encoded)
}

// decodeText strips ASCII whitespace (legacy encoders wrap lines at 76
// columns) and accepts both padded and unpadded standard base64
func decodeText(encoded string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n', '\f', '\v':
			return -1
		}
		return r
	}, encoded)

	if cleaned == "" {
		return nil, errors.New("empty payload")
	}

	if len(cleaned)%4 != 0 {
		return base64.RawStdEncoding.DecodeString(strings.TrimRight(cleaned, "="))
	}
	return base64.StdEncoding.DecodeString(cleaned)
}

func (u *Unwrapper) decompress(compressed []byte) ([]byte, error) {
	var (
		r   io.ReadCloser
		err error
	)

	switch {
	case isGzip(compressed):
		r, err = gzip.NewReader(bytes.NewReader(compressed))
	case isZlib(compressed):
		r, err = zlib.NewReader(bytes.NewReader(compressed))
	default:
		return nil, fmt.Errorf("unrecognized stream header (%d bytes)", len(compressed))
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()

	// Read one byte past the cap so oversize streams are detectable
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, u.maxDecoded+1))
	if err != nil {
		return nil, err
	}
	if n > u.maxDecoded {
		return nil, fmt.Errorf("decompressed size exceeds %d bytes", u.maxDecoded)
	}

	return buf.Bytes(), nil
}

func isGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}

// isZlib checks the CMF/FLG pair of an RFC 1950 header
func isZlib(b []byte) bool {
	if len(b) < 2 {
		return false
	}
	cmf, flg := b[0], b[1]
	if cmf&0x0f != 8 || cmf>>4 > 7 {
		return false
	}
	return (uint16(cmf)<<8|uint16(flg))%31 == 0
}
