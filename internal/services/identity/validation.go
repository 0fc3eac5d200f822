package identity

import (
	"regexp"
	"strings"
	"time"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 10
	minPasswordLen = 6
	maxPasswordLen = 12
	minAge         = 18
	maxAge         = 100
)

var (
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	websitePattern = regexp.MustCompile(`^(https?://)?(www\.)?([a-zA-Z0-9\-]+\.)+[a-zA-Z]{2,}(/.*)?$|^(https?://)?localhost(:\d+)?(/.*)?$`)
	phonePattern   = regexp.MustCompile(`^\+?[0-9 \-()]{7,20}$`)
)

// RegistrationInput carries the fields of a registration request.
type RegistrationInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
	DateOfBirth     time.Time
	Gender          string
	PhoneNumber     string
	Country         string
	Website         string
	Newsletter      bool
}

// Validate checks the registration fields and collects every failure
// rather than stopping at the first. Uniqueness against the store is the
// service's job, not the input's.
func (in RegistrationInput) Validate(now time.Time) *ValidationError {
	ve := &ValidationError{}

	validateUsername(ve, in.Username)
	validateEmail(ve, in.Email)

	switch {
	case strings.TrimSpace(in.Password) == "":
		ve.Add("password", "password is required")
	case len(in.Password) < minPasswordLen || len(in.Password) > maxPasswordLen:
		ve.Add("password", "password must be between 6 and 12 characters")
	case in.Password != in.ConfirmPassword:
		ve.Add("confirm_password", "passwords do not match")
	}

	validateProfile(ve, in.DateOfBirth, in.PhoneNumber, in.Website, now)

	if ve.HasErrors() {
		return ve
	}
	return nil
}

// UpdateInput carries the fields of a profile update. NewPassword is
// optional; blank keeps the current hash.
type UpdateInput struct {
	ID          int64
	Username    string
	Email       string
	NewPassword string
	DateOfBirth time.Time
	Gender      string
	PhoneNumber string
	Country     string
	Website     string
	Department  *string
	Newsletter  bool
}

// Validate checks the update fields, collecting every failure.
func (in UpdateInput) Validate(now time.Time) *ValidationError {
	ve := &ValidationError{}

	validateUsername(ve, in.Username)
	validateEmail(ve, in.Email)

	if in.NewPassword != "" && (len(in.NewPassword) < minPasswordLen || len(in.NewPassword) > maxPasswordLen) {
		ve.Add("new_password", "password must be between 6 and 12 characters")
	}

	validateProfile(ve, in.DateOfBirth, in.PhoneNumber, in.Website, now)

	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateUsername(ve *ValidationError, username string) {
	switch {
	case strings.TrimSpace(username) == "":
		ve.Add("username", "username is required")
	case len(username) < minUsernameLen || len(username) > maxUsernameLen:
		ve.Add("username", "username length must be within 3 to 10 characters")
	}
}

func validateEmail(ve *ValidationError, email string) {
	switch {
	case strings.TrimSpace(email) == "":
		ve.Add("email", "email is required")
	case !emailPattern.MatchString(email):
		ve.Add("email", "email address is not valid")
	}
}

func validateProfile(ve *ValidationError, dob time.Time, phone, website string, now time.Time) {
	if !dob.IsZero() {
		age := ageAt(dob, now)
		if age < minAge || age > maxAge {
			ve.Add("date_of_birth", "age must be between 18 and 100 years")
		}
	}
	if phone != "" && !phonePattern.MatchString(phone) {
		ve.Add("phone_number", "phone number is not valid")
	}
	if website != "" && !websitePattern.MatchString(website) {
		ve.Add("website", "website URL is not valid")
	}
}

func ageAt(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if dob.AddDate(years, 0, 0).After(now) {
		years--
	}
	return years
}
