package validation

import (
	"regexp"
	"strings"
)

var (
	emailRegex  = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	plateRegex  = regexp.MustCompile(`^[A-Z0-9][A-Z0-9 \-]{1,14}$`)
	serialRegex = regexp.MustCompile(`^[A-Za-z0-9\-]{4,64}$`)
)

func ValidateEmail(email string) bool {
	email = strings.TrimSpace(email)
	return email != "" && emailRegex.MatchString(email) && len(email) <= 200
}

// ValidatePlate accepts upper-case registration plates like "KA-01-AB-1234".
func ValidatePlate(plate string) bool {
	plate = strings.ToUpper(strings.TrimSpace(plate))
	return plateRegex.MatchString(plate)
}

// ValidateSerial accepts hub serial numbers (alphanumeric with dashes).
func ValidateSerial(serial string) bool {
	return serialRegex.MatchString(strings.TrimSpace(serial))
}

func ValidateName(name string) bool {
	name = strings.TrimSpace(name)
	return len(name) >= 2 && len(name) <= 200
}

func ValidatePassword(password string) bool {
	return len(password) >= 6 && len(password) <= 100
}

func ValidateCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
