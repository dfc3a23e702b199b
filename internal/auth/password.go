package auth

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._]{3,30}$`)
	phoneRegex    = regexp.MustCompile(`^\+?[\d\s\-()]+$`)
)

type Hasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}

type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return BcryptHasher{cost: cost}
}

func (h BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (h BcryptHasher) Compare(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func validateEmail(email string) error {
	if email == "" {
		return invalid("email", "Please enter a valid email address")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || strings.ToLower(addr.Address) != email {
		return invalid("email", "Please enter a valid email address")
	}
	return nil
}

func validateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return invalid("username", "Username must be 3-30 characters and can only contain letters, numbers, dots, and underscores")
	}
	return nil
}

func validateFullName(fullName string) error {
	n := utf8.RuneCountInString(fullName)
	if n < 2 || n > 50 {
		return invalid("fullName", "Full name must be between 2 and 50 characters")
	}
	return nil
}

func validatePhone(phone string) error {
	if phone != "" && !phoneRegex.MatchString(phone) {
		return invalid("phone", "Please enter a valid phone number")
	}
	return nil
}

// maxPasswordBytes is bcrypt's input limit; longer passwords fail to hash.
const maxPasswordBytes = 72

// validatePasswordStrength requires 8+ characters with an upper case letter,
// a lower case letter and a digit.
func validatePasswordStrength(field, password string) error {
	var hasUpper, hasLower, hasDigit bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasDigit = true
		}
	}
	if len(password) > maxPasswordBytes {
		return invalid(field, "Password must be at most 72 bytes long")
	}
	if len(password) < 8 || !hasUpper || !hasLower || !hasDigit {
		return invalid(field, "Password must be at least 8 characters and contain at least one uppercase letter, one lowercase letter, and one number")
	}
	return nil
}
