package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func withBuild(t *testing.T, v, c, d string) {
	t.Helper()
	prevV, prevC, prevD := version, commit, date
	version, commit, date = v, c, d
	t.Cleanup(func() { version, commit, date = prevV, prevC, prevD })
}

func TestGet_Defaults(t *testing.T) {
	b := Get()
	assert.Equal(t, GetVersion(), b.Version)
	assert.Equal(t, GetCommit(), b.Commit)
	assert.NotEmpty(t, b.Date)
}

func TestBuild_String(t *testing.T) {
	withBuild(t, "v1.2.0", "abcdef0123", "2026-10-01")

	b := Get()
	assert.False(t, b.Dev())
	assert.Equal(t, "version=v1.2.0 commit=abcdef0123 date=2026-10-01", b.String())
}

func TestUserAgent(t *testing.T) {
	tests := []struct {
		name    string
		version string
		commit  string
		want    string
	}{
		{name: "dev build", version: "dev", commit: "unknown", want: "bookstore/dev"},
		{name: "release with long commit", version: "v1.2.0", commit: "abcdef0123", want: "bookstore/v1.2.0 (abcdef0)"},
		{name: "short commit kept as is", version: "v1.2.0", commit: "abc", want: "bookstore/v1.2.0 (abc)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withBuild(t, tt.version, tt.commit, "unknown")
			assert.Equal(t, tt.want, UserAgent("bookstore"))
		})
	}
}
