package validators

import (
	"errors"
	"unicode/utf8"
)

const NameMaxLength = 255

var ErrNameTooLong = errors.New("name is too long")

func NameValidator(n string) error {
	if utf8.RuneCountInString(n) > NameMaxLength {
		return ErrNameTooLong
	}

	return nil
}
