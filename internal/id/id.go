// Package id generates collision-resistant identifiers.
package id

import (
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewNode returns an image node id. It combines a millisecond timestamp
// with a random suffix, so ids created in the same millisecond cannot
// collide and ids sort roughly by creation time.
func NewNode() string {
	return fmt.Sprintf("img-%d-%s", time.Now().UnixMilli(), suffix(9))
}

// NewToken returns a 32-character opaque random token (e.g. uploaded
// file name discriminators).
func NewToken() string {
	return suffix(32)
}

func suffix(n int) string {
	s, err := gonanoid.Generate(alphabet, n)
	if err != nil {
		panic(fmt.Sprintf("generate nanoid: %v", err))
	}
	return s
}
