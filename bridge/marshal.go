package bridge

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"golang.org/x/text/encoding/unicode"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// NarrowString converts a UTF-16LE buffer produced by the guest into UTF-8.
//
// Conversion is lossy: unpaired surrogates become U+FFFD and never cause an error. The only
// failure is an interior NUL, which cannot survive as a NUL-terminated narrow string.
func NarrowString(wide []byte) ([]byte, error) {
	if len(wide)%2 != 0 {
		wide = wide[:len(wide)-1]
	}
	narrow, err := utf16le.NewDecoder().Bytes(wide)
	if err != nil {
		return nil, fmt.Errorf("failed to decode UTF-16: %w", err)
	}
	if bytes.IndexByte(narrow, 0) >= 0 {
		return nil, ErrInteriorNUL
	}
	return narrow, nil
}

// WideString encodes s as UTF-16LE, the representation the guest hands to the callback.
func WideString(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[i*2:], u)
	}
	return out
}

// WideUnits encodes raw UTF-16 code units as UTF-16LE bytes. Unlike WideString it can carry
// unpaired surrogates.
func WideUnits(units []uint16) []byte {
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[i*2:], u)
	}
	return out
}
