package logstore

import "strings"

// projectPathMarker replaces path separators in encoded project directory names.
const projectPathMarker = "-"

// DecodeProjectPath turns an encoded project directory name into a display
// name. "-Users-dev-myapp" becomes "myapp"; names without the leading marker
// are returned unchanged. The result is cosmetic: the encoded name stays the
// project id.
func DecodeProjectPath(encoded string) string {
	if !strings.HasPrefix(encoded, projectPathMarker) {
		return encoded
	}
	decoded := strings.ReplaceAll(encoded[len(projectPathMarker):], projectPathMarker, "/")
	if i := strings.LastIndexByte(decoded, '/'); i >= 0 {
		return decoded[i+1:]
	}
	return decoded
}
