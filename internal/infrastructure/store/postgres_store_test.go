package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLikePrefix(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"items/", "items/%"},
		{"users/u_1/", `users/u\_1/%`},
		{"a%b/", `a\%b/%`},
		{`back\slash/`, `back\\slash/%`},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			assert.Equal(t, tt.want, likePrefix(tt.prefix))
		})
	}
}
