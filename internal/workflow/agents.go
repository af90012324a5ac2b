package workflow

import "strings"

// Role names a specialist agent in a workflow.
type Role string

const (
	RoleOrchestrator Role = "orchestrator"
	RoleTriage       Role = "triage"
	RoleResearch     Role = "research"
	RoleCompliance   Role = "compliance"
	RoleReview       Role = "review"
	RoleOutput       Role = "output"
)

// agentConfig fixes each role's prompt and whether its steps get indexed
// documents injected into their context.
type agentConfig struct {
	systemPrompt      string
	canQueryKnowledge bool
}

var agentConfigs = map[Role]agentConfig{
	RoleOrchestrator: {systemPrompt: orchestratorPrompt},
	RoleTriage:       {systemPrompt: triagePrompt, canQueryKnowledge: true},
	RoleResearch:     {systemPrompt: researchPrompt, canQueryKnowledge: true},
	RoleCompliance:   {systemPrompt: compliancePrompt, canQueryKnowledge: true},
	RoleReview:       {systemPrompt: reviewPrompt},
	RoleOutput:       {systemPrompt: outputPrompt},
}

// parseRole maps an agent name from a model response to a role, falling
// back to research for anything unknown.
func parseRole(name string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(name))) {
	case RoleTriage:
		return RoleTriage
	case RoleResearch:
		return RoleResearch
	case RoleCompliance:
		return RoleCompliance
	case RoleReview:
		return RoleReview
	case RoleOutput:
		return RoleOutput
	default:
		return RoleResearch
	}
}

const orchestratorPrompt = `You are the planning agent of a document analysis workflow.

Analyze the user request and break it into steps for the available specialist agents:
- TRIAGE: classifies the request, assigns priority, identifies scope
- RESEARCH: queries the indexed documents, gathers data and evidence
- COMPLIANCE: checks regulations, policies and deadlines
- REVIEW: synthesizes findings, identifies gaps, validates quality
- OUTPUT: formats the final response for the user

Respond with a JSON workflow plan:
{
  "task_summary": "brief description of the task",
  "workflow_steps": [
    {"agent": "TRIAGE", "instruction": "what to do"},
    {"agent": "RESEARCH", "instruction": "what to find"}
  ]
}`

const triagePrompt = `You are the triage agent of a document analysis workflow.

Classify the request by type, assign a priority (P1 to P4), identify the scope
and name the specialist agents needed.

Respond with JSON:
{
  "classification": {"type": "...", "priority": "P1|P2|P3|P4"},
  "scope": ["impacted areas"],
  "key_questions": ["questions that need answers"]
}`

const researchPrompt = `You are the research agent of a document analysis workflow.

Answer the instruction using only the provided document excerpts. Cite the
file each finding came from and flag gaps where the documents are silent.

Respond with JSON:
{
  "findings": [{"topic": "...", "data": "...", "source": "file name", "confidence": "high|medium|low"}],
  "data_gaps": ["information not found"]
}`

const compliancePrompt = `You are the compliance agent of a document analysis workflow.

Check the instruction against the requirements, deadlines and policies in the
provided document excerpts. Flag violations and upcoming deadlines.

Respond with JSON:
{
  "compliance_status": {"overall": "compliant|at_risk|non_compliant", "risk_level": "high|medium|low"},
  "violations": ["current violations"],
  "upcoming_deadlines": ["important dates"]
}`

const reviewPrompt = `You are the review agent of a document analysis workflow.

Synthesize the previous agents' outputs, identify conflicts and decide whether
the analysis is complete.

Respond with JSON:
{
  "synthesis": {"summary": "...", "confidence_level": "high|medium|low"},
  "gaps_identified": ["what is missing"],
  "additional_work_needed": [{"agent": "AGENT_NAME", "task": "what they should do"}],
  "ready_for_output": true
}`

const outputPrompt = `You are the output agent of a document analysis workflow.

Format the final response for the user as clear markdown: a short executive
summary, key findings as bullet points, and numbered recommended actions.
Reference the source documents the findings came from.`
