// Package workflow runs multi-agent analysis workflows on top of the
// retrieval pipeline: a planning agent turns a request into specialist
// steps, each step runs against the completion provider (with indexed
// documents injected for knowledge-capable agents), and a review agent
// may demand extra rounds before the output agent formats the answer.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"docuchat/internal/helper"
	"docuchat/internal/models"
	"docuchat/internal/rag"
	"docuchat/internal/retriever"
)

// Workflow states.
const (
	StatePending       = "pending"
	StateInProgress    = "in_progress"
	StateNeedsRevision = "needs_revision"
	StateCompleted     = "completed"
	StateFailed        = "failed"
)

// Step statuses.
const (
	StepPending   = "pending"
	StepCompleted = "completed"
	StepFailed    = "failed"
)

// Step is one agent task inside a workflow.
type Step struct {
	ID          int    `json:"id"`
	Agent       Role   `json:"agent"`
	Instruction string `json:"instruction"`
	Status      string `json:"status"`
	Output      string `json:"output,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Workflow tracks one request through planning, execution and review.
type Workflow struct {
	ID          string `json:"id"`
	Request     string `json:"request"`
	State       string `json:"state"`
	Steps       []Step `json:"steps"`
	Iterations  int    `json:"iterations"`
	FinalOutput string `json:"final_output,omitempty"`
}

// Options bounds a workflow run.
type Options struct {
	// TopK documents injected into knowledge-capable steps.
	TopK int
	// MaxIterations caps review-driven revision rounds.
	MaxIterations int
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = 5
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = 5
	}
	return o
}

// Runner executes workflows against the completion provider and the
// document index.
type Runner struct {
	completer rag.Completer
	retriever *retriever.Retriever
	opts      Options
}

func NewRunner(completer rag.Completer, r *retriever.Retriever, opts Options) *Runner {
	return &Runner{completer: completer, retriever: r, opts: opts.withDefaults()}
}

// Run plans and executes a workflow for the request. Individual step
// failures are recorded on the step and the workflow continues; the run
// fails only when no final output could be produced.
func (r *Runner) Run(ctx context.Context, request string) (*Workflow, error) {
	if strings.TrimSpace(request) == "" {
		return nil, &models.ValidationError{Msg: "request must not be empty"}
	}

	w := &Workflow{
		ID:      "wf_" + strings.ReplaceAll(helper.GenerateUUID(), "-", "")[:8],
		Request: request,
		State:   StateInProgress,
	}
	w.Steps = r.plan(ctx, w)

	for w.Iterations < r.opts.MaxIterations {
		w.Iterations++
		for i := range w.Steps {
			if w.Steps[i].Status == StepPending {
				r.executeStep(ctx, w, &w.Steps[i])
			}
		}
		if err := ctx.Err(); err != nil {
			w.State = StateFailed
			return w, &models.GenerationError{Err: err}
		}

		extra := r.revisionSteps(w)
		if len(extra) == 0 {
			break
		}
		log.Info().Str("workflow", w.ID).Int("steps", len(extra)).Msg("Review requested additional analysis")
		w.State = StateNeedsRevision
		w.Steps = append(w.Steps, extra...)
	}

	if err := r.finalize(ctx, w); err != nil {
		w.State = StateFailed
		return w, err
	}
	w.State = StateCompleted
	return w, nil
}

// plan asks the planning agent for a step list, falling back to the
// fixed default pipeline when the plan cannot be parsed.
func (r *Runner) plan(ctx context.Context, w *Workflow) []Step {
	answer, err := r.complete(ctx, RoleOrchestrator, nil,
		fmt.Sprintf("Plan a workflow for this user request: %s", w.Request))
	if err == nil {
		var p struct {
			WorkflowSteps []struct {
				Agent       string `json:"agent"`
				Instruction string `json:"instruction"`
			} `json:"workflow_steps"`
		}
		if json.Unmarshal(extractJSON(answer), &p) == nil && len(p.WorkflowSteps) > 0 {
			steps := make([]Step, len(p.WorkflowSteps))
			for i, s := range p.WorkflowSteps {
				steps[i] = Step{ID: i + 1, Agent: parseRole(s.Agent), Instruction: s.Instruction, Status: StepPending}
			}
			return steps
		}
	}
	log.Warn().Err(err).Str("workflow", w.ID).Msg("Planning failed, using the default pipeline")

	return []Step{
		{ID: 1, Agent: RoleTriage, Instruction: "Classify and prioritize: " + w.Request, Status: StepPending},
		{ID: 2, Agent: RoleResearch, Instruction: "Research relevant data for: " + w.Request, Status: StepPending},
		{ID: 3, Agent: RoleReview, Instruction: "Review all findings and identify gaps", Status: StepPending},
		{ID: 4, Agent: RoleOutput, Instruction: "Create the final response for the user", Status: StepPending},
	}
}

func (r *Runner) executeStep(ctx context.Context, w *Workflow, step *Step) {
	log.Info().Str("workflow", w.ID).Str("agent", string(step.Agent)).Msg("Executing step")

	answer, err := r.complete(ctx, step.Agent, w, step.Instruction)
	if err != nil {
		step.Status = StepFailed
		step.Error = err.Error()
		log.Warn().Err(err).Str("workflow", w.ID).Str("agent", string(step.Agent)).Msg("Step failed")
		return
	}
	step.Status = StepCompleted
	step.Output = answer
}

// complete builds the prompt for one agent call: its system prompt, the
// prior step outputs, retrieved documents where permitted, and the
// instruction.
func (r *Runner) complete(ctx context.Context, role Role, w *Workflow, instruction string) (string, error) {
	cfg := agentConfigs[role]
	messages := []llms.MessageContent{textMessage(llms.ChatMessageTypeSystem, cfg.systemPrompt)}

	var contextParts []string
	if w != nil {
		if prior := priorOutputs(w); prior != "" {
			contextParts = append(contextParts, "Previous agent outputs:\n"+prior)
		}
		if cfg.canQueryKnowledge && r.retriever != nil {
			if excerpts := r.knowledgeExcerpts(ctx, w.Request); excerpts != "" {
				contextParts = append(contextParts, "Indexed document excerpts:\n"+excerpts)
			}
		}
	}
	if len(contextParts) > 0 {
		messages = append(messages, textMessage(llms.ChatMessageTypeSystem, strings.Join(contextParts, "\n\n")))
	}
	messages = append(messages, textMessage(llms.ChatMessageTypeHuman, instruction))

	return r.completer.Complete(ctx, messages)
}

// knowledgeExcerpts retrieves documents for the request and renders them
// as a JSON block for the agent prompt. Retrieval failure degrades to no
// excerpts rather than failing the step.
func (r *Runner) knowledgeExcerpts(ctx context.Context, request string) string {
	results, err := r.retriever.Retrieve(ctx, request, r.opts.TopK)
	if err != nil {
		log.Warn().Err(err).Msg("Knowledge retrieval failed, continuing without excerpts")
		return ""
	}
	if len(results) == 0 {
		return ""
	}

	type excerpt struct {
		FileName  string `json:"file_name"`
		Title     string `json:"title,omitempty"`
		Content   string `json:"content"`
		SourceURL string `json:"source_url,omitempty"`
	}
	excerpts := make([]excerpt, len(results))
	for i, res := range results {
		content := res.Chunk.Content
		if len(content) > 1000 {
			content = content[:1000]
		}
		excerpts[i] = excerpt{
			FileName:  res.Chunk.FileName,
			Title:     res.Chunk.Title,
			Content:   content,
			SourceURL: res.Chunk.SourceURL,
		}
	}
	data, err := json.MarshalIndent(excerpts, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

// revisionSteps reads the latest review verdict and turns any requested
// follow-up work into new pending steps, closed by another review.
func (r *Runner) revisionSteps(w *Workflow) []Step {
	var verdict *struct {
		AdditionalWorkNeeded []struct {
			Agent string `json:"agent"`
			Task  string `json:"task"`
		} `json:"additional_work_needed"`
		ReadyForOutput *bool `json:"ready_for_output"`
	}
	for i := len(w.Steps) - 1; i >= 0; i-- {
		step := w.Steps[i]
		if step.Agent != RoleReview || step.Status != StepCompleted {
			continue
		}
		if json.Unmarshal(extractJSON(step.Output), &verdict) != nil {
			verdict = nil
		}
		break
	}
	if verdict == nil {
		return nil
	}
	ready := verdict.ReadyForOutput == nil || *verdict.ReadyForOutput
	if ready && len(verdict.AdditionalWorkNeeded) == 0 {
		return nil
	}

	nextID := len(w.Steps) + 1
	var steps []Step
	for _, work := range verdict.AdditionalWorkNeeded {
		steps = append(steps, Step{ID: nextID, Agent: parseRole(work.Agent), Instruction: work.Task, Status: StepPending})
		nextID++
	}
	if len(steps) > 0 {
		steps = append(steps, Step{
			ID:          nextID,
			Agent:       RoleReview,
			Instruction: "Review the additional findings and determine if the analysis is complete",
			Status:      StepPending,
		})
	}
	return steps
}

// finalize takes the last completed output step's text as the workflow
// result, running the output agent once more if no such step exists.
func (r *Runner) finalize(ctx context.Context, w *Workflow) error {
	for i := len(w.Steps) - 1; i >= 0; i-- {
		step := w.Steps[i]
		if step.Agent == RoleOutput && step.Status == StepCompleted {
			w.FinalOutput = step.Output
			return nil
		}
	}

	step := Step{
		ID:          len(w.Steps) + 1,
		Agent:       RoleOutput,
		Instruction: "Create the final response synthesizing all agent findings",
		Status:      StepPending,
	}
	w.Steps = append(w.Steps, step)
	r.executeStep(ctx, w, &w.Steps[len(w.Steps)-1])

	last := w.Steps[len(w.Steps)-1]
	if last.Status != StepCompleted {
		return &models.GenerationError{Err: fmt.Errorf("output step failed: %s", last.Error)}
	}
	w.FinalOutput = last.Output
	return nil
}

// priorOutputs renders completed step outputs for later prompts.
func priorOutputs(w *Workflow) string {
	var b strings.Builder
	for _, step := range w.Steps {
		if step.Status != StepCompleted || step.Output == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s] %s", step.Agent, step.Output)
	}
	return b.String()
}

// extractJSON pulls the outermost JSON object out of a model response,
// tolerating fenced code blocks and surrounding prose.
func extractJSON(s string) []byte {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return []byte(s)
	}
	return []byte(s[start : end+1])
}

func textMessage(role llms.ChatMessageType, text string) llms.MessageContent {
	return llms.MessageContent{
		Role:  role,
		Parts: []llms.ContentPart{llms.TextContent{Text: text}},
	}
}
