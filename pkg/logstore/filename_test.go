package logstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"session.jsonl", "session.jsonl"},
		{"My cool movie.mov", "My_cool_movie.mov"},
		{"../../../etc/passwd", "etc_passwd"},
		{`..\..\windows\system32`, "windows_system32"},
		{"i contain cool ümläuts.txt", "i_contain_cool_umlauts.txt"},
		{"  spaced   out  .jsonl", "spaced_out_.jsonl"},
		{"weird$%^&*chars.jsonl", "weirdchars.jsonl"},
		{".hidden.jsonl", "hidden.jsonl"},
		{"日本語", ""},
		{"...", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := SanitizeFilename(tt.input)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "/")
			assert.NotContains(t, got, `\`)
		})
	}
}
