package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"mongodb://user:pw@db:27017", "mongodb://****:****@db:27017"},
		{"mongodb://db:27017", "mongodb://db:27017"},
		{"", ""},
		// Bad escapes keep url.Parse from finding the password.
		{"mongodb://user:p%zz@db:27017", redactedURI},
		{"user:secret@db:27017", redactedURI},
	}
	for _, tt := range tests {
		got := redactURI(tt.uri)
		assert.Equal(t, tt.want, got, tt.uri)
		assert.NotContains(t, got, "secret")
		assert.NotContains(t, got, "p%zz")
	}
}
