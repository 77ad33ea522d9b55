package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// AvatarURL returns the Gravatar image for an email address, falling back
// to the generic silhouette. Size defaults to 64px.
func AvatarURL(email string, size int) string {
	if size <= 0 {
		size = 64
	}
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))

	var b strings.Builder
	b.WriteString("https://www.gravatar.com/avatar/")
	b.WriteString(hex.EncodeToString(sum[:]))
	b.WriteString("?s=")
	b.WriteString(strconv.Itoa(size))
	b.WriteString("&d=mp")
	return b.String()
}
