package logstore

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Source tells which backend produced a record.
type Source string

const (
	SourceLocal    Source = "local"
	SourceUploaded Source = "uploaded"
)

// displayLayout renders modification times for people, e.g. "Mar 04, 2025 02:15 PM".
const displayLayout = "Jan 02, 2006 03:04 PM"

// Project is a named collection of session files. SessionCount always equals len(Sessions).
type Project struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	EncodedPath  string   `json:"encoded_path"`
	SessionCount int      `json:"session_count"`
	Sessions     []string `json:"sessions"`
	Source       Source   `json:"source"`
}

func newProject(id, name string, sessions []string, source Source) Project {
	if sessions == nil {
		sessions = []string{}
	}
	return Project{
		ID:           id,
		Name:         name,
		EncodedPath:  id,
		SessionCount: len(sessions),
		Sessions:     sessions,
		Source:       source,
	}
}

// Session describes one session file. ID + SessionSuffix == FileName.
type Session struct {
	ID              string    `json:"id"`
	FileName        string    `json:"filename"`
	FilePath        string    `json:"file_path"`
	MessageCount    int       `json:"message_count"`
	FileSize        int64     `json:"file_size"`
	ModifiedAt      time.Time `json:"modified_time"`
	ModifiedDisplay string    `json:"modified_display"`
	Source          Source    `json:"source"`
}

func newSession(fileName, location string, size int64, modified time.Time, messages int, source Source) Session {
	return Session{
		ID:              SessionID(fileName),
		FileName:        fileName,
		FilePath:        location,
		MessageCount:    messages,
		FileSize:        size,
		ModifiedAt:      modified,
		ModifiedDisplay: modified.Local().Format(displayLayout),
		Source:          source,
	}
}

// SessionID strips the session suffix from a file name.
func SessionID(fileName string) string {
	return strings.TrimSuffix(fileName, SessionSuffix)
}

// IsSessionFile reports whether name carries the session suffix.
func IsSessionFile(name string) bool {
	return strings.HasSuffix(name, SessionSuffix)
}

// sortSessions orders newest first; equal times fall back to file name.
func sortSessions(sessions []Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if !sessions[i].ModifiedAt.Equal(sessions[j].ModifiedAt) {
			return sessions[i].ModifiedAt.After(sessions[j].ModifiedAt)
		}
		return sessions[i].FileName < sessions[j].FileName
	})
}

// Message is one JSON record of a session file, kept byte-for-byte.
type Message = json.RawMessage

// UploadedFile is one object in a visitor's namespace.
type UploadedFile struct {
	Name       string    `json:"name"`
	Key        string    `json:"key"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}
