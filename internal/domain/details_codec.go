package domain

import "encoding/base64"

// base64DetailsEncode/Decode isolate the encoding choice for Transaction's
// free-text Details field from the rest of the line format, so the
// encoding can change without touching callers.
func base64DetailsEncode(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func base64DetailsDecode(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
