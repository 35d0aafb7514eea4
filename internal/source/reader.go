package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// ErrDecode is wrapped by every DecodeError.
var ErrDecode = errors.New("no encoding could decode source")

// DecodeError reports that every configured encoding failed.
type DecodeError struct {
	Name      string
	Attempted []string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %v (tried %s)", e.Name, ErrDecode, strings.Join(e.Attempted, ", "))
}

func (e *DecodeError) Unwrap() error { return ErrDecode }

// DefaultEncodings is the fallback order used when none is configured.
var DefaultEncodings = []string{"utf-8", "iso-8859-1", "windows-1252", "ascii"}

type decodeFunc func([]byte) (string, bool)

var decoders = map[string]decodeFunc{
	"utf-8":        decodeUTF8,
	"iso-8859-1":   charmapDecoder(charmap.ISO8859_1),
	"windows-1252": charmapDecoder(charmap.Windows1252),
	"ascii":        decodeASCII,
}

var aliases = map[string]string{
	"utf8":     "utf-8",
	"latin-1":  "iso-8859-1",
	"latin1":   "iso-8859-1",
	"cp1252":   "windows-1252",
	"us-ascii": "ascii",
}

func canonical(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if a, ok := aliases[n]; ok {
		return a
	}
	return n
}

func decodeUTF8(b []byte) (string, bool) {
	if !utf8.Valid(b) {
		return "", false
	}
	return string(b), true
}

func decodeASCII(b []byte) (string, bool) {
	for _, c := range b {
		if c >= utf8.RuneSelf {
			return "", false
		}
	}
	return string(b), true
}

// charmapDecoder decodes with a single-byte table. Bytes the table leaves
// undefined come back as U+FFFD, which counts as failure.
func charmapDecoder(cm *charmap.Charmap) decodeFunc {
	return func(b []byte) (string, bool) {
		out, err := cm.NewDecoder().Bytes(b)
		if err != nil {
			return "", false
		}
		for _, c := range b {
			if cm.DecodeByte(c) == utf8.RuneError {
				return "", false
			}
		}
		return string(out), true
	}
}

// Text is decoded source content.
type Text struct {
	Content  string
	Encoding string
	Bytes    int64
}

// Reader decodes sources using an ordered encoding list.
type Reader struct {
	encodings []string
}

// NewReader validates the encoding names. An empty list means
// DefaultEncodings.
func NewReader(encodings ...string) (*Reader, error) {
	if len(encodings) == 0 {
		encodings = DefaultEncodings
	}
	r := &Reader{}
	for _, e := range encodings {
		c := canonical(e)
		if _, ok := decoders[c]; !ok {
			return nil, fmt.Errorf("unsupported encoding %q", e)
		}
		r.encodings = append(r.encodings, c)
	}
	return r, nil
}

// Encodings returns the canonical fallback order.
func (r *Reader) Encodings() []string {
	return append([]string(nil), r.encodings...)
}

// Decode returns the text from the first encoding that accepts b. There
// is no replacement-character fallback; a byte no encoding accepts fails
// the source.
func (r *Reader) Decode(name string, b []byte) (Text, error) {
	for _, enc := range r.encodings {
		if s, ok := decoders[enc](b); ok {
			return Text{Content: s, Encoding: enc, Bytes: int64(len(b))}, nil
		}
	}
	return Text{Bytes: int64(len(b))}, &DecodeError{Name: name, Attempted: r.Encodings()}
}

// Read drains rd and decodes it.
func (r *Reader) Read(name string, rd io.Reader) (Text, error) {
	b, err := io.ReadAll(rd)
	if err != nil {
		return Text{}, fmt.Errorf("read %s: %w", name, err)
	}
	return r.Decode(name, b)
}

// ReadFile reads and decodes the file at path.
func (r *Reader) ReadFile(path string) (Text, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Text{}, err
	}
	return r.Decode(path, b)
}
