package validation

import (
	"fmt"

	dErrors "zkcred/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize is the maximum allowed request body size (64 KB).
	MaxBodySize = 64 * 1024

	// MaxWalletMessageSize bounds inbound wallet callbacks. Proof responses carry
	// public signals and Groth16 points, so they get more room than API bodies.
	MaxWalletMessageSize = 512 * 1024
)

// Slice element count limits
const (
	// MaxSkills is the maximum number of required skills in one verification request.
	MaxSkills = 20

	// MaxConditions is the maximum number of keys in a custom condition map.
	MaxConditions = 20

	// MaxListLimit caps ordered-limit reads such as claims by holder.
	MaxListLimit = 100
)

// String element length limits
const (
	// MaxNameLength is the maximum length of a holder's full name.
	MaxNameLength = 200

	// MaxDIDLength is the maximum length of a wallet or issuer DID.
	MaxDIDLength = 512

	// MaxReasonLength is the maximum length of a revocation or verification reason.
	MaxReasonLength = 500

	// MaxSkillLength is the maximum length of a skill, degree, or institution string.
	MaxSkillLength = 120
)

// CheckSliceCount validates that a slice does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("too many %s: max %d allowed", fieldName, max))
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

// CheckEachStringLength validates that each string in a slice does not exceed the maximum length.
func CheckEachStringLength(fieldName string, values []string, max int) error {
	for _, v := range values {
		if len(v) > max {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
		}
	}
	return nil
}
