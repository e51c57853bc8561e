package utils

import (
	"crypto/rand"
	"strconv"
	"time"
)

const codeAlphabet = "abcdefghijkmnpqrstuvwxyz23456789"

// NewCode returns a best-effort unique code of n characters, safe to put in a URL.
// Look-alike characters are left out.
func NewCode(n int) string {
	if n <= 0 {
		n = 10
	}

	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// Fallback to timestamp if crypto/rand is unavailable.
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}
