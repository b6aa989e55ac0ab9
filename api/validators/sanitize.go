package validators

import (
	"fmt"
	"strings"
	"unicode/utf8"

	pkgerrors "github.com/angelmondragon/careforall-backend/pkg/errors"
)

// SanitizeString trims input and cuts it to at most maxLen bytes without
// splitting a rune.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen > 0 && len(trimmed) > maxLen {
		return strings.ToValidUTF8(trimmed[:maxLen], "")
	}
	return trimmed
}

// HeaderValue returns the trimmed header value, rejecting values longer than
// maxLen bytes or not valid UTF-8. Missing headers come back empty.
func HeaderValue(header, value string, maxLen int) (string, error) {
	trimmed := strings.TrimSpace(value)
	switch {
	case !utf8.ValidString(trimmed):
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid header").
			WithDetails(map[string]string{header: "must be valid UTF-8"})
	case maxLen > 0 && len(trimmed) > maxLen:
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid header").
			WithDetails(map[string]string{header: fmt.Sprintf("must be at most %d bytes", maxLen)})
	}
	return trimmed, nil
}
