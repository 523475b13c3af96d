package privacy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

type NationalIDSuite struct {
	suite.Suite
}

func TestNationalIDSuite(t *testing.T) {
	suite.Run(t, new(NationalIDSuite))
}

var validNationalIDs = []string{
	"234567890124",
	"499182345674",
	"837362519042",
	"123456789011",
	"523051684276",
}

func (s *NationalIDSuite) TestValidateChecksum() {
	s.Run("known-valid sequences pass", func() {
		for _, id := range validNationalIDs {
			s.True(ValidateChecksum(id), id)
		}
	})

	s.Run("whitespace is ignored", func() {
		s.True(ValidateChecksum("2345 6789 0124"))
	})

	s.Run("sequential digits fail", func() {
		s.False(ValidateChecksum("123456789012"))
	})

	s.Run("every single-digit mutation fails", func() {
		for _, id := range validNationalIDs {
			for pos := 0; pos < len(id); pos++ {
				for d := byte('0'); d <= '9'; d++ {
					if id[pos] == d {
						continue
					}
					mutated := id[:pos] + string(d) + id[pos+1:]
					s.False(ValidateChecksum(mutated), "mutation %s of %s", mutated, id)
				}
			}
		}
	})

	s.Run("malformed input fails", func() {
		s.False(ValidateChecksum("12345"))
		s.False(ValidateChecksum("23456789012a"))
		s.False(ValidateChecksum(""))
	})
}

func (s *NationalIDSuite) TestHashNationalID() {
	s.Run("deterministic for same raw and salt", func() {
		h1, err := HashNationalID("234567890124", "salt-a")
		s.Require().NoError(err)
		h2, err := HashNationalID("2345 6789 0124", "salt-a")
		s.Require().NoError(err)
		s.Equal(h1, h2)
		s.Len(h1, 64)
	})

	s.Run("salt changes the hash", func() {
		h1, err := HashNationalID("234567890124", "salt-a")
		s.Require().NoError(err)
		h2, err := HashNationalID("234567890124", "salt-b")
		s.Require().NoError(err)
		s.NotEqual(h1, h2)
	})

	s.Run("hash never contains the raw digits", func() {
		h, err := HashNationalID("234567890124", "salt-a")
		s.Require().NoError(err)
		s.NotContains(h, "234567890124")
	})

	s.Run("rejects wrong length and non-digits", func() {
		for _, raw := range []string{"12345678901", "1234567890123", "12345678901x", "   "} {
			_, err := HashNationalID(raw, "salt-a")
			s.True(errors.Is(err, ErrInvalidFormat), raw)
		}
	})

	s.Run("requires a salt", func() {
		_, err := HashNationalID("234567890124", "")
		s.ErrorIs(err, ErrMissingSalt)
	})

	s.Run("hasher binds salt", func() {
		want, err := HashNationalID("234567890124", "bound")
		s.Require().NoError(err)
		got, err := NewNationalIDHasher("bound").Hash("234567890124")
		s.Require().NoError(err)
		s.Equal(want, got)
	})
}
