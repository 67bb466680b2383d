package logstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeProjectPath(t *testing.T) {
	tests := []struct {
		encoded string
		want    string
	}{
		{"-Users-dev-myapp", "myapp"},
		{"-home-me-src-tool", "tool"},
		{"-single", "single"},
		{"plainname", "plainname"},
		{"no-leading-marker", "no-leading-marker"},
		{"-trailing-", ""},
		{"-", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.encoded, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeProjectPath(tt.encoded))
		})
	}
}

func TestSessionID(t *testing.T) {
	assert.Equal(t, "abc123", SessionID("abc123.jsonl"))
	assert.True(t, IsSessionFile("abc123.jsonl"))
	assert.False(t, IsSessionFile("abc123.json"))
	assert.Equal(t, "abc123.jsonl", SessionID("abc123.jsonl")+SessionSuffix)
}
