package id

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string. ULIDs sort by creation time and are used
// as notification ids in both backends.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
