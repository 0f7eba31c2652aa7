package payload

import "bytes"

// Format identifies the serialization scheme of a decoded payload
type Format int

const (
	// GraphForm is the compact binary object-graph serialization
	GraphForm Format = iota
	// TreeForm is the self-describing XML object markup
	TreeForm
)

// String returns a short name for the format
func (f Format) String() string {
	switch f {
	case TreeForm:
		return "tree"
	case GraphForm:
		return "graph"
	default:
		return "unknown"
	}
}

var (
	xmlMagic = []byte("<?xml")
	utf8BOM  = []byte{0xef, 0xbb, 0xbf}
)

// Sniff decides the serialization scheme by magic prefix only.
// Decoders still validate the structure.
func Sniff(raw []byte) Format {
	if bytes.HasPrefix(bytes.TrimPrefix(raw, utf8BOM), xmlMagic) {
		return TreeForm
	}
	return GraphForm
}

// Decoded is one unwrapped payload together with its detected format
type Decoded struct {
	Format Format
	Raw    []byte
}

// Open unwraps an encoded payload and sniffs its format
func (u *Unwrapper) Open(encoded string) (Decoded, error) {
	raw, err := u.Unwrap(encoded)
	if err != nil {
		return Decoded{}, err
	}
	return Decoded{Format: Sniff(raw), Raw: raw}, nil
}
