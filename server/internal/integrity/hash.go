package integrity

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/vitalstream/vitalstream/pkg/types"
)

// Version is the canonical encoding version used for new records.
const Version = 1

var (
	// ErrNonFinite is returned when a numeric field is NaN or infinite.
	ErrNonFinite = errors.New("integrity: non-finite number")

	// ErrUnknownVersion is returned for an encoding version this build does
	// not implement.
	ErrUnknownVersion = errors.New("integrity: unknown encoding version")
)

const hexDigits = "0123456789abcdef"

// Hash returns the hex SHA-256 of the current-version canonical encoding of c.
func Hash(c types.Content) (string, error) {
	return HashVersion(Version, c)
}

// HashVersion hashes c with the given canonical encoding version.
func HashVersion(version int, c types.Content) (string, error) {
	b, err := CanonicalVersion(version, c)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Canonical returns the current-version canonical encoding of c.
func Canonical(c types.Content) ([]byte, error) {
	return CanonicalVersion(Version, c)
}

// CanonicalVersion returns the canonical encoding of c for version.
func CanonicalVersion(version int, c types.Content) ([]byte, error) {
	switch version {
	case 1:
		return encodeV1(c)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}
}

// encodeV1 writes the four content keys in sorted order:
// ai_result, patient_id, timestamp, vitals.
func encodeV1(c types.Content) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"ai_result": `)
	writeString(&buf, c.AIResult)
	buf.WriteString(`, "patient_id": `)
	writeString(&buf, c.PatientID)
	buf.WriteString(`, "timestamp": `)
	if err := writeNumber(&buf, c.Timestamp); err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}
	buf.WriteString(`, "vitals": {`)

	keys := make([]string, 0, len(c.Vitals))
	for k := range c.Vitals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			buf.WriteString(", ")
		}
		writeString(&buf, k)
		buf.WriteString(": ")
		if err := writeNumber(&buf, c.Vitals[k]); err != nil {
			return nil, fmt.Errorf("vitals.%s: %w", k, err)
		}
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

func writeNumber(buf *bytes.Buffer, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ErrNonFinite
	}
	if v == 0 {
		buf.WriteByte('0')
		return nil
	}
	buf.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			switch {
			case r < 0x20:
				writeUnicodeEscape(buf, r)
			case r < utf8.RuneSelf:
				buf.WriteByte(byte(r))
			case r > 0xFFFF:
				hi, lo := utf16.EncodeRune(r)
				writeUnicodeEscape(buf, hi)
				writeUnicodeEscape(buf, lo)
			default:
				writeUnicodeEscape(buf, r)
			}
		}
	}
	buf.WriteByte('"')
}

func writeUnicodeEscape(buf *bytes.Buffer, r rune) {
	buf.WriteString(`\u`)
	buf.WriteByte(hexDigits[(r>>12)&0xF])
	buf.WriteByte(hexDigits[(r>>8)&0xF])
	buf.WriteByte(hexDigits[(r>>4)&0xF])
	buf.WriteByte(hexDigits[r&0xF])
}
