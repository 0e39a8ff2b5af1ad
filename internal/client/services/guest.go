package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/dmitrijs2005/deskauth/internal/common"
)

type guestCredentials struct {
	Username string
	Name     string
	Password string
}

// newGuestCredentials builds a throwaway account: the username combines a
// base36 timestamp with a random suffix and the password satisfies
// validPassword.
func newGuestCredentials(now time.Time) (guestCredentials, error) {
	suffix, err := common.MakeRandHexString(3)
	if err != nil {
		return guestCredentials{}, fmt.Errorf("guest suffix: %w", err)
	}
	secret, err := common.MakeRandHexString(12)
	if err != nil {
		return guestCredentials{}, fmt.Errorf("guest password: %w", err)
	}

	stamp := strconv.FormatInt(now.UnixMilli(), 36)
	return guestCredentials{
		Username: guestUsernamePrefix + stamp + "_" + suffix,
		Name:     "Guest " + strings.ToUpper(suffix),
		Password: "G" + secret + "!",
	}, nil
}

// validPassword is the minimum complexity policy: at least eight characters,
// one uppercase letter and one symbol.
func validPassword(pw string) bool {
	if len(pw) < minPasswordLength {
		return false
	}
	var upper, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	return upper && symbol
}
