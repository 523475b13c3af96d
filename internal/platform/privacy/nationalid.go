package privacy

import (
	"encoding/hex"
	"errors"
	"strings"
	"unicode"

	"golang.org/x/crypto/argon2"
)

// NationalIDLength is the number of digits in a national ID number.
const NationalIDLength = 12

var (
	// ErrInvalidFormat is returned when a national ID is not exactly 12 digits
	// once whitespace is removed.
	ErrInvalidFormat = errors.New("national id must be exactly 12 digits")

	// ErrMissingSalt is returned when hashing is attempted without a salt.
	ErrMissingSalt = errors.New("national id salt is not configured")
)

// argon2id parameters. The ID space is only 10^12, so the hash has to be
// expensive enough that enumerating it offline is impractical.
const (
	argonTime    = 2
	argonMemory  = 19 * 1024
	argonThreads = 1
	argonKeyLen  = 32
)

// NormalizeNationalID strips whitespace and checks the 12-digit shape.
func NormalizeNationalID(raw string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if len(digits) != NationalIDLength {
		return "", ErrInvalidFormat
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", ErrInvalidFormat
		}
	}
	return digits, nil
}

// HashNationalID returns the salted one-way hash of a national ID as hex.
// The same raw value and salt always produce the same hash, which is what lets
// duplicates be detected without retaining the raw number.
func HashNationalID(raw, salt string) (string, error) {
	if salt == "" {
		return "", ErrMissingSalt
	}
	digits, err := NormalizeNationalID(raw)
	if err != nil {
		return "", err
	}
	sum := argon2.IDKey([]byte(digits), []byte(salt), argonTime, argonMemory, argonThreads, argonKeyLen)
	return hex.EncodeToString(sum), nil
}

// Verhoeff tables: dihedral group D5 multiplication and the position permutation.
var (
	verhoeffD = [10][10]int{
		{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		{1, 2, 3, 4, 0, 6, 7, 8, 9, 5},
		{2, 3, 4, 0, 1, 7, 8, 9, 5, 6},
		{3, 4, 0, 1, 2, 8, 9, 5, 6, 7},
		{4, 0, 1, 2, 3, 9, 5, 6, 7, 8},
		{5, 9, 8, 7, 6, 0, 4, 3, 2, 1},
		{6, 5, 9, 8, 7, 1, 0, 4, 3, 2},
		{7, 6, 5, 9, 8, 2, 1, 0, 4, 3},
		{8, 7, 6, 5, 9, 3, 2, 1, 0, 4},
		{9, 8, 7, 6, 5, 4, 3, 2, 1, 0},
	}
	verhoeffP = [8][10]int{
		{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		{1, 5, 7, 6, 2, 8, 3, 0, 9, 4},
		{5, 8, 0, 3, 7, 9, 6, 1, 4, 2},
		{8, 9, 1, 6, 0, 4, 3, 5, 2, 7},
		{9, 4, 5, 3, 1, 2, 8, 7, 0, 6},
		{4, 2, 8, 6, 5, 7, 3, 9, 0, 1},
		{2, 7, 9, 3, 8, 0, 6, 4, 1, 5},
		{7, 0, 4, 6, 9, 1, 3, 2, 5, 8},
	}
)

// ValidateChecksum runs the Verhoeff check over a 12-digit national ID. It is an
// integrity gate against typos, not a cryptographic guarantee.
func ValidateChecksum(raw string) bool {
	digits, err := NormalizeNationalID(raw)
	if err != nil {
		return false
	}
	c := 0
	for i := 0; i < len(digits); i++ {
		d := int(digits[len(digits)-1-i] - '0')
		c = verhoeffD[c][verhoeffP[i%8][d]]
	}
	return c == 0
}

// NationalIDHasher binds the configured salt so callers never handle it directly.
type NationalIDHasher struct {
	salt string
}

// NewNationalIDHasher creates a hasher for the given salt.
func NewNationalIDHasher(salt string) *NationalIDHasher {
	return &NationalIDHasher{salt: salt}
}

// Hash hashes raw with the bound salt.
func (h *NationalIDHasher) Hash(raw string) (string, error) {
	return HashNationalID(raw, h.salt)
}
