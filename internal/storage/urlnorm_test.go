package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{
			"lowercases scheme and host",
			"HTTPS://ArXiv.ORG/abs/2403.01234",
			"https://arxiv.org/abs/2403.01234",
		},
		{
			"strips utm parameters",
			"https://example.com/post?utm_source=tw&utm_medium=social&id=7",
			"https://example.com/post?id=7",
		},
		{
			"strips click identifiers",
			"https://example.com/?fbclid=abc&gclid=def",
			"https://example.com/",
		},
		{
			"preserves path case and fragment",
			"https://github.com/User/Repo#readme",
			"https://github.com/User/Repo#readme",
		},
		{
			"sorts surviving query keys",
			"https://example.com/s?z=1&a=2",
			"https://example.com/s?a=2&z=1",
		},
		{
			"trims surrounding whitespace",
			"  https://example.com/page  ",
			"https://example.com/page",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeURL(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestNormalizeURLEquivalence(t *testing.T) {
	a, err := NormalizeURL("https://Example.com/post?utm_campaign=x&id=1")
	require.NoError(t, err)
	b, err := NormalizeURL("https://example.com/post?id=1")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNormalizeURLRejectsInvalid(t *testing.T) {
	tests := []string{
		"",
		"not-a-url",
		"ftp://example.com/file",
		"https://",
		"/relative/path",
	}

	for _, in := range tests {
		_, err := NormalizeURL(in)
		require.Error(t, err, "input %q", in)
		assert.ErrorIs(t, err, ErrValidation, "input %q", in)
	}
}
