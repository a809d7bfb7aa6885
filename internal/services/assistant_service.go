// Package services – AssistantService
//
// This file implements AssistantService, the application-level component that
// answers user prompts. It validates input, retrieves grounding passages from
// the configured search.Index, streams a model completion, rewrites inline
// citation markers into Markdown links, and persists the updated chat through
// the repository once the answer is complete.
//
// Streaming is callback-based: the caller supplies handlers that receive the
// retrieved sources up front and then cumulative content snapshots as tokens
// arrive. Snapshots (rather than raw deltas) are delivered because citation
// markers like [[citation:3]] can be split across token boundaries and are
// only rewritable on the accumulated text.
//
// Observability: Respond is OpenTelemetry-instrumented; spans include chat and
// user identifiers plus the number of retrieved sources.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nereus-ai/chat-backend/internal/auth"
	"github.com/nereus-ai/chat-backend/internal/domain"
	"github.com/nereus-ai/chat-backend/internal/search"
)

const (
	// defaultTopK is how many grounding passages are retrieved per prompt.
	defaultTopK = 5

	// titleMaxRunes caps auto-generated chat titles.
	titleMaxRunes = 100
)

// ChatStore defines the repository contract required by AssistantService.
type ChatStore interface {
	// GetChat fetches a chat by ID scoped to the user; nil means absent or
	// not owned.
	GetChat(ctx context.Context, id, userID string) *domain.Chat

	// SaveChat persists a chat for the session owner. Persistence failures
	// are absorbed by the repository; anonymous sessions are skipped.
	SaveChat(ctx context.Context, sess *auth.Session, chat *domain.Chat)
}

// Source is one retrieved grounding passage. Label carries the document
// section heading when the knowledge base has one, so the client can show a
// human-readable citation name.
type Source struct {
	Label   string `json:"label"`
	Snippet string `json:"snippet"`
}

// StreamHandlers receives the assistant's output as it is produced. Either
// handler may be nil. Returning an error from a handler aborts the stream;
// nothing is persisted in that case.
type StreamHandlers struct {
	// OnSources is called once, before any content, with the retrieved
	// grounding passages (possibly empty).
	OnSources func(sources []Source) error

	// OnContent is called with the cumulative, citation-rewritten answer text
	// after each model delta.
	OnContent func(content string) error
}

// AssistantService answers prompts with retrieval-grounded streaming
// completions and persists the resulting conversation turn.
type AssistantService struct {
	// Chats is the chat repository used for history and persistence.
	Chats ChatStore
	// Index is the knowledge index backing retrieval. May be nil, in which
	// case answers are ungrounded and carry no citations.
	Index search.Index
	// Stream produces model completions.
	Stream Streamer

	// TopK overrides how many passages are retrieved (default 5).
	TopK int
	// MaxPromptRunes caps prompt length; 0 disables the check.
	MaxPromptRunes int
}

// Respond answers prompt within the chat identified by chatID, streaming
// output through h, and returns the persisted assistant message. A chat that
// does not yet exist for the session user is created with a title derived
// from the prompt. For anonymous sessions the answer still streams but the
// repository skips persistence.
func (s *AssistantService) Respond(ctx context.Context, sess *auth.Session, chatID, prompt string, h StreamHandlers) (*domain.Message, error) {
	tr := otel.Tracer("services/AssistantService")
	userID := ""
	if sess != nil {
		userID = sess.UserID
	}
	ctx, span := tr.Start(ctx, "Respond",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(prompt) > s.MaxPromptRunes {
		return nil, ErrTooLong
	}

	chat := s.Chats.GetChat(ctx, chatID, userID)
	if chat == nil {
		chat = &domain.Chat{
			ID:        chatID,
			UserID:    userID,
			Title:     domain.TitleFromContent(prompt, titleMaxRunes),
			Path:      domain.ChatPathFor(chatID),
			CreatedAt: time.Now().UTC(),
		}
	}

	sources := s.retrieveSources(prompt)
	span.SetAttributes(attribute.Int("sources.count", len(sources)))
	if h.OnSources != nil {
		if err := h.OnSources(sources); err != nil {
			return nil, err
		}
	}

	messages := completionMessages(chat, prompt, sources)

	var b strings.Builder
	err := s.Stream.StreamCompletion(ctx, messages, func(delta string) error {
		b.WriteString(delta)
		if h.OnContent != nil {
			return h.OnContent(rewriteCitations(b.String()))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	answer := rewriteCitations(b.String())
	assistant := &domain.Message{
		ID:      uuid.NewString(),
		Role:    domain.RoleAssistant,
		Content: answer,
	}
	chat.Messages = append(chat.Messages,
		domain.Message{ID: uuid.NewString(), Role: domain.RoleUser, Content: prompt},
		*assistant,
	)
	s.Chats.SaveChat(ctx, sess, chat)
	return assistant, nil
}

func (s *AssistantService) retrieveSources(prompt string) []Source {
	if s.Index == nil {
		return nil
	}
	k := s.TopK
	if k <= 0 {
		k = defaultTopK
	}
	results := s.Index.TopK(prompt, k)
	out := make([]Source, 0, len(results))
	for i, r := range results {
		label := r.Section
		if label == "" {
			label = fmt.Sprintf("Source %d", i+1)
		}
		out = append(out, Source{Label: label, Snippet: r.Snippet})
	}
	return out
}

// completionMessages assembles the model request: grounding system prompt,
// prior turns, then the new user prompt.
func completionMessages(chat *domain.Chat, prompt string, sources []Source) []domain.Message {
	msgs := make([]domain.Message, 0, len(chat.Messages)+2)
	msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: systemPrompt(sources)})
	msgs = append(msgs, chat.Messages...)
	msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: prompt})
	return msgs
}

const groundedPromptTemplate = `You are a large language AI assistant. You are given a user question, and please write a clean, concise and accurate answer to the question. You will be given a set of related contexts to the question, each starting with a reference number like [[citation:x]], where x is a number. Please use the context and cite the context at the end of each sentence if applicable.

Your answer must be correct, accurate and written by an expert using an unbiased and professional tone. Do not give any information that is not related to the question, and do not repeat. Say "information is missing on" followed by the related topic, if the given context does not provide sufficient information.

Please cite the contexts with the reference numbers, in the format [citation:x]. If a sentence comes from multiple contexts, please list all applicable citations, like [citation:3][citation:5]. Other than code and specific names and citations, your answer must be written in the same language as the question.

Here are the set of contexts:

%s

Remember, don't blindly repeat the contexts verbatim.`

const ungroundedPrompt = `You are a large language AI assistant. Write a clean, concise and accurate answer to the user's question, using an unbiased and professional tone.`

func systemPrompt(sources []Source) string {
	if len(sources) == 0 {
		return ungroundedPrompt
	}
	var ctx strings.Builder
	for i, src := range sources {
		if i > 0 {
			ctx.WriteString("\n\n")
		}
		fmt.Fprintf(&ctx, "[[citation:%d]] %s", i+1, src.Snippet)
	}
	return fmt.Sprintf(groundedPromptTemplate, ctx.String())
}
