// Package api defines the request/response payloads of the CodeCollab REST
// surface.
package api

import "time"

// Session is a collaborative workspace's metadata.
type Session struct {
	ID               string    `json:"id"`
	JoinCode         string    `json:"joinCode"`
	Name             string    `json:"name"`
	Language         string    `json:"language"`
	CreatedBy        string    `json:"createdBy"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
	ParticipantCount int       `json:"participantCount"`
}

type CreateSessionRequest struct {
	Name     string `json:"name"`
	Language string `json:"language"`
	Username string `json:"username"`
}

type JoinSessionRequest struct {
	JoinCode string `json:"joinCode"`
	Username string `json:"username"`
}

// SessionResponse is returned by create and join; Token authorizes
// subsequent REST calls for this session.
type SessionResponse struct {
	Session Session `json:"session"`
	Token   string  `json:"token,omitempty"`
}

type UpdateSessionRequest struct {
	Name     string `json:"name,omitempty"`
	Language string `json:"language,omitempty"`
}

// HistoryEntry is one past execution recorded by the server.
type HistoryEntry struct {
	ExecutedBy string    `json:"executedBy"`
	Language   string    `json:"language"`
	Code       string    `json:"code"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	ExecutedAt time.Time `json:"executedAt"`
}

type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

type RunCodeRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Input    string `json:"input,omitempty"`
}

type RunCodeResponse struct {
	Output     string `json:"output"`
	Stderr     string `json:"stderr,omitempty"`
	ExitCode   int    `json:"exitCode"`
	DurationMs int64  `json:"durationMs"`
}

type ValidateCodeRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

type ValidateCodeResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

type Language struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type LanguagesResponse struct {
	Languages []Language `json:"languages"`
}

// ErrorResponse is the uniform REST error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}
