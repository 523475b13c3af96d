package models

import (
	"time"

	"zkcred/internal/platform/privacy"
	limits "zkcred/pkg/platform/validation"
	str "zkcred/pkg/string"
	"zkcred/pkg/validation"
)

const maxAgeYears = 150

// CreateClaimRequest is the issuance request for one holder.
type CreateClaimRequest struct {
	HolderID       string `json:"holder_id" validate:"required,did"`
	FullName       string `json:"full_name" validate:"notblank"`
	NationalID     string `json:"national_id" validate:"required"`
	DateOfBirth    string `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
	Skill          string `json:"skill" validate:"required,notblank"`
	Graduated      bool   `json:"graduated"`
	Score          *int   `json:"score" validate:"omitempty,gte=300,lte=900"`
	Institution    string `json:"institution"`
	Degree         string `json:"degree"`
	GraduationYear *int   `json:"graduation_year" validate:"omitempty,gte=1900,lte=2100"`
	Grade          string `json:"grade" validate:"omitempty,max=20"`
	Description    string `json:"description"`
}

// Normalize trims free-text fields and strips whitespace from the national ID.
func (r *CreateClaimRequest) Normalize() {
	str.TrimStrings(&r.HolderID, &r.FullName, &r.DateOfBirth, &r.Skill,
		&r.Institution, &r.Degree, &r.Grade, &r.Description)
	r.NationalID = str.StripSpaces(r.NationalID)
}

// Validate checks every field as of now and reports all failures together.
// The national ID must be 12 digits and pass the Verhoeff checksum; the date
// of birth must not be in the future or imply an age over 150.
func (r *CreateClaimRequest) Validate(now time.Time) error {
	var c validation.Collector
	c.Struct(r)
	c.Check("holder_id", limits.CheckStringLength("holder_id", r.HolderID, limits.MaxDIDLength))
	c.Check("full_name", limits.CheckStringLength("full_name", r.FullName, limits.MaxNameLength))
	c.Check("skill", limits.CheckStringLength("skill", r.Skill, limits.MaxSkillLength))
	c.Check("institution", limits.CheckStringLength("institution", r.Institution, limits.MaxSkillLength))
	c.Check("degree", limits.CheckStringLength("degree", r.Degree, limits.MaxSkillLength))
	c.Check("description", limits.CheckStringLength("description", r.Description, limits.MaxReasonLength))

	if !c.Has("national_id") {
		if _, err := privacy.NormalizeNationalID(r.NationalID); err != nil {
			c.Add("national_id", "national_id must be exactly 12 digits")
		} else if !privacy.ValidateChecksum(r.NationalID) {
			c.Add("national_id", "national_id checksum is invalid")
		}
	}

	if r.DateOfBirth != "" && !c.Has("date_of_birth") {
		dob, _ := time.Parse(time.DateOnly, r.DateOfBirth)
		switch {
		case dob.After(now):
			c.Add("date_of_birth", "date_of_birth must not be in the future")
		case dob.Before(now.AddDate(-maxAgeYears, 0, 0)):
			c.Add("date_of_birth", "date_of_birth implies an age over 150")
		}
	}

	return c.Err()
}

// Subject builds the stored attribute set using the already-computed hash.
func (r *CreateClaimRequest) Subject(nationalIDHash string) Subject {
	return Subject{
		FullName:       r.FullName,
		NationalIDHash: nationalIDHash,
		DateOfBirth:    r.DateOfBirth,
		Skill:          r.Skill,
		Graduated:      r.Graduated,
		Score:          r.Score,
		Institution:    r.Institution,
		Degree:         r.Degree,
		GraduationYear: r.GraduationYear,
		Grade:          r.Grade,
	}
}

// RevokeRequest carries the optional revocation reason.
type RevokeRequest struct {
	Reason string `json:"reason"`
}

func (r *RevokeRequest) Normalize() {
	str.TrimStrings(&r.Reason)
}

func (r *RevokeRequest) Validate() error {
	var c validation.Collector
	c.Check("reason", limits.CheckStringLength("reason", r.Reason, limits.MaxReasonLength))
	return c.Err()
}
