// Package domain defines the persisted data model for chats, messages, and
// users. The system of record is a document store addressed by collection and
// document id; these types carry both JSON tags (API payloads) and dynamodbav
// tags (persisted attribute names).
package domain

import (
	"strings"
	"time"
)

// Message roles. The assistant and user roles dominate; function messages
// carry serialized tool output and name the tool under Name.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleFunction  = "function"
	RoleData      = "data"
	RoleTool      = "tool"
)

// Message is a single utterance within a chat. Messages travel embedded in
// their Chat document and are replaced wholesale on save rather than updated
// individually.
//
// Fields:
//   - ID: stable identifier, assigned when the message is appended.
//   - Role: one of the Role* constants.
//   - Content: full text content (for function messages, serialized output).
//   - Name: tool/function name; present only on function and tool messages.
type Message struct {
	ID      string `json:"id"             dynamodbav:"id"`
	Role    string `json:"role"           dynamodbav:"role"`
	Content string `json:"content"        dynamodbav:"content"`
	Name    string `json:"name,omitempty" dynamodbav:"name,omitempty"`
}

// Chat is a conversation owned by a user. It lives in the "chat" collection,
// keyed by its own ID.
//
// Fields:
//   - ID: stable identifier, assigned at creation, immutable.
//   - UserID: owner identifier, immutable after creation.
//   - Title: derived from the first message content, set once at creation.
//   - Path: canonical route of the chat ("/chat/<id>"), set at creation.
//   - Messages: ordered conversation transcript, replaced wholesale on save.
//   - SharePath: "/share/<id>" once the chat has been published for sharing;
//     empty (and omitted from the document) while the chat is private.
//   - CreatedAt: creation timestamp, set once.
type Chat struct {
	ID        string    `json:"id"                  dynamodbav:"id"`
	UserID    string    `json:"userId"              dynamodbav:"userId"`
	Title     string    `json:"title"               dynamodbav:"title"`
	Path      string    `json:"path"                dynamodbav:"path"`
	Messages  []Message `json:"messages"            dynamodbav:"messages"`
	SharePath string    `json:"sharePath,omitempty" dynamodbav:"sharePath,omitempty"`
	CreatedAt time.Time `json:"createdAt"           dynamodbav:"createdAt"`
}

// Shared reports whether the chat has been published for link sharing.
// Once set, SharePath is never cleared by any operation.
func (c *Chat) Shared() bool { return c != nil && c.SharePath != "" }

// SharePathFor returns the canonical share route for a chat id.
func SharePathFor(id string) string { return "/share/" + id }

// ChatPathFor returns the canonical chat route for a chat id.
func ChatPathFor(id string) string { return "/chat/" + id }

// TitleFromContent derives a chat title from message content: leading runes,
// whitespace-trimmed, capped at max runes.
func TitleFromContent(content string, max int) string {
	content = strings.TrimSpace(content)
	if r := []rune(content); max > 0 && len(r) > max {
		return string(r[:max])
	}
	return content
}

// User is an account record in the "user" collection, keyed by email address.
// It is owned by the authentication subsystem; this service only ever reads
// it during login.
//
// The persisted salt attribute is named "slat": the misspelling predates this
// service and exists in production documents, so the attribute name is kept
// and only the Go field is spelled correctly.
//
// User is a storage shape, never an API response body: both tag sets mirror
// the document attributes, credentials included. Handlers must not serialize
// it.
type User struct {
	ID       string `json:"id"       dynamodbav:"id"`
	Email    string `json:"email"    dynamodbav:"email"`
	Password string `json:"password" dynamodbav:"password"`
	Salt     string `json:"slat"     dynamodbav:"slat"`
}
