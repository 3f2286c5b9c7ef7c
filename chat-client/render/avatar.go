package render

import (
	"crypto/md5"
	"encoding/hex"
)

// DefaultAvatarURL is the Gravatar image endpoint; the hash is appended as-is.
const DefaultAvatarURL = "http://www.gravatar.com/avatar/"

// AvatarURL returns base followed by the hex MD5 of username.
func AvatarURL(base, username string) string {
	if base == "" {
		base = DefaultAvatarURL
	}
	sum := md5.Sum([]byte(username))
	return base + hex.EncodeToString(sum[:])
}
