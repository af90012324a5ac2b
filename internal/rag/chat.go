// Package rag drives the retrieval-augmented chat loop: retrieve, assemble
// a cited context, prompt the completion provider, track per-session
// history.
package rag

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"docuchat/internal/helper"
	"docuchat/internal/models"
	"docuchat/internal/retriever"
)

// Completer is the completion-provider contract; llmservice.Client
// implements it.
type Completer interface {
	Complete(ctx context.Context, messages []llms.MessageContent) (string, error)
}

// Options bounds one chat turn's resource use. ContextChars must leave
// room in the provider's context window for history and the answer.
type Options struct {
	TopK         int
	ContextChars int
	HistoryTurns int
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = 10
	}
	if o.ContextChars <= 0 {
		o.ContextChars = 12000
	}
	if o.HistoryTurns <= 0 {
		o.HistoryTurns = 10
	}
	return o
}

// Orchestrator owns the chat sessions and runs one turn at a time per
// session.
type Orchestrator struct {
	retriever *retriever.Retriever
	completer Completer
	opts      Options

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewOrchestrator(r *retriever.Retriever, completer Completer, opts Options) *Orchestrator {
	return &Orchestrator{
		retriever: r,
		completer: completer,
		opts:      opts.withDefaults(),
		sessions:  make(map[string]*Session),
	}
}

// Session returns the session with the given ID, creating it on first use.
// An empty ID creates a fresh session with a generated ID.
func (o *Orchestrator) Session(id string) *Session {
	if id == "" {
		id = helper.GenerateUUID()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[id]
	if !ok {
		s = newSession(id)
		o.sessions[id] = s
	}
	return s
}

// Ask answers one question in the given session. On any failure the turn
// aborts cleanly: nothing is appended to the session history and a typed
// error is returned. A question the index has no material for gets an
// explicit "no relevant information" answer instead of a fabricated one.
func (o *Orchestrator) Ask(ctx context.Context, sessionID, question string) (*models.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, &models.ValidationError{Msg: "question must not be empty"}
	}

	s := o.Session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	results, err := o.retriever.Retrieve(ctx, question, o.opts.TopK)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		log.Info().Str("session", s.ID).Msg("No retrieval results, answering without generation")
		s.appendExchange(question, models.NoContextAnswer)
		return &models.Answer{Answer: models.NoContextAnswer}, nil
	}

	contextText, citations := Assemble(results, o.opts.ContextChars)
	messages := buildPrompt(contextText, s.lastTurns(o.opts.HistoryTurns), question)

	answer, err := o.completer.Complete(ctx, messages)
	if err != nil {
		return nil, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		// a cancelled turn appends nothing
		return nil, &models.GenerationError{Err: ctxErr}
	}

	s.appendExchange(question, answer)
	return &models.Answer{Answer: answer, Sources: referencedCitations(answer, citations)}, nil
}

func buildPrompt(contextText string, history []models.ChatMessage, question string) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(history)+2)
	messages = append(messages, textMessage(llms.ChatMessageTypeSystem, fmt.Sprintf(models.SystemPromptTemplate, contextText)))
	for _, turn := range history {
		role := llms.ChatMessageTypeHuman
		if turn.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, textMessage(role, turn.Content))
	}
	return append(messages, textMessage(llms.ChatMessageTypeHuman, question))
}

func textMessage(role llms.ChatMessageType, text string) llms.MessageContent {
	return llms.MessageContent{
		Role:  role,
		Parts: []llms.ContentPart{llms.TextContent{Text: text}},
	}
}

var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// referencedCitations keeps the citations whose ordinal appears in the
// answer, in ordinal order. When the model emitted no markers at all, the
// full citation map is returned so callers still see what the answer was
// grounded on.
func referencedCitations(answer string, citations []models.Citation) []models.Citation {
	referenced := make(map[int]bool)
	for _, m := range citationMarker.FindAllStringSubmatch(answer, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			referenced[n] = true
		}
	}
	if len(referenced) == 0 {
		return citations
	}
	var used []models.Citation
	for _, c := range citations {
		if referenced[c.Ordinal] {
			used = append(used, c)
		}
	}
	if len(used) == 0 {
		return citations
	}
	return used
}
