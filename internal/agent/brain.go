package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/nsharma/weft/internal/engine"
	"github.com/nsharma/weft/internal/observability"
)

// Brain defines the core intelligence interface for the agent.
type Brain interface {
	Think(ctx context.Context, chatID string, input string) (string, error)
}

type HistoryStore interface {
	AddMessage(chatID string, role string, content string) error
	GetHistory(chatID string, limit int) ([]llms.MessageContent, error)
	SaveBoard(chatID string, snapshot map[string]any) error
	LoadBoard(chatID string) (map[string]any, error)
	SaveReport(chatID string, report *engine.ExecutionReport) error
}

// PlannerBrain turns a chat message into a dependency plan, validates it,
// and hands it to the executor. Each chat keeps its own blackboard so
// follow-up goals can reference outputs of earlier runs.
type PlannerBrain struct {
	Model    llms.Model
	Registry *engine.Registry
	Executor *engine.Executor
	History  HistoryStore
	Prompts  *PromptManager
	Logger   *observability.Logger
	Env      map[string]string

	mu     sync.Mutex
	boards map[string]*engine.Blackboard
}

func NewPlannerBrain(model llms.Model, registry *engine.Registry, executor *engine.Executor, history HistoryStore, prompts *PromptManager) *PlannerBrain {
	return &PlannerBrain{
		Model:    model,
		Registry: registry,
		Executor: executor,
		History:  history,
		Prompts:  prompts,
		boards:   make(map[string]*engine.Blackboard),
	}
}

// board returns the chat's blackboard, restoring a persisted snapshot on
// first access.
func (b *PlannerBrain) board(chatID string) *engine.Blackboard {
	b.mu.Lock()
	defer b.mu.Unlock()

	if bb, ok := b.boards[chatID]; ok {
		return bb
	}
	bb := engine.NewBlackboard()
	if b.History != nil {
		if snap, err := b.History.LoadBoard(chatID); err == nil && len(snap) > 0 {
			bb.Restore(snap)
		}
	}
	b.boards[chatID] = bb
	return bb
}

func (b *PlannerBrain) Think(ctx context.Context, chatID string, input string) (string, error) {
	ctx = context.WithValue(ctx, "chatID", chatID)

	observability.SetStatus(observability.RolePlanner, input)
	defer observability.SetStatus(observability.RoleIdle, "")

	plan, chatReply, err := b.propose(ctx, chatID, input)
	if err != nil {
		return "", err
	}
	if chatReply != "" {
		b.saveExchange(chatID, input, chatReply)
		return chatReply, nil
	}

	log.Printf("[Planner] Plan %s: %d steps for goal %q", plan.ID, len(plan.Steps), plan.Goal)
	observability.SetStatus(observability.RoleExecutor, plan.Goal)

	board := b.board(chatID)
	report, err := b.Executor.Execute(ctx, plan, board, b.Env)
	if err != nil {
		return "", fmt.Errorf("execution error: %v", err)
	}

	if b.History != nil {
		if err := b.History.SaveReport(chatID, report); err != nil {
			log.Printf("Warning: failed to save execution report: %v", err)
		}
		if err := b.History.SaveBoard(chatID, board.Snapshot()); err != nil {
			log.Printf("Warning: failed to save blackboard: %v", err)
		}
	}

	reply := renderReport(report)
	b.saveExchange(chatID, input, reply)
	return reply, nil
}

func (b *PlannerBrain) saveExchange(chatID, input, reply string) {
	if b.History == nil {
		return
	}
	b.History.AddMessage(chatID, "human", input)
	b.History.AddMessage(chatID, "ai", reply)
}

// plannedStep is the JSON shape the model submits through propose_plan.
type plannedStep struct {
	StepID      string         `json:"step_id"`
	Capability  string         `json:"capability"`
	Args        map[string]any `json:"args"`
	DependsOn   []string       `json:"depends_on"`
	Description string         `json:"description"`
}

type proposedPlan struct {
	Steps []plannedStep `json:"steps"`
}

// propose asks the model for a plan. A plain text choice means the model
// decided the message is conversation, not a goal; the text is returned as
// the reply. When no model is configured the rule-based plan is used.
func (b *PlannerBrain) propose(ctx context.Context, chatID string, input string) (*engine.Plan, string, error) {
	if b.Model == nil {
		plan := b.fallbackPlan(chatID, input)
		if plan == nil {
			return nil, "I need a URL to work with. Send me a goal that includes a webpage to extract.", nil
		}
		if errs := engine.Validate(plan, b.Registry); len(errs) > 0 {
			return nil, "", fmt.Errorf("fallback plan invalid: %v", errs)
		}
		return plan, "", nil
	}

	messages, err := b.plannerMessages(chatID, input)
	if err != nil {
		return nil, "", err
	}

	// One repair round: validation failures go back to the model before
	// giving up.
	const maxAttempts = 2
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := b.Model.GenerateContent(ctx, messages, llms.WithTools(plannerTools()))
		if err != nil {
			return nil, "", err
		}
		choice := resp.Choices[0]
		if b.Logger != nil {
			b.Logger.LogLLM(chatID, "", input, choice.Content, choice.ToolCalls)
		}

		var proposal *proposedPlan
		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall.Name != "propose_plan" {
				continue
			}
			var p proposedPlan
			if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &p); err != nil {
				return nil, "", fmt.Errorf("failed to parse propose_plan arguments: %v", err)
			}
			proposal = &p
			break
		}

		if proposal == nil {
			if choice.Content != "" {
				return nil, choice.Content, nil
			}
			return nil, "", fmt.Errorf("planner provided neither a plan nor a text response")
		}

		plan := b.assemblePlan(input, proposal)
		errs := engine.Validate(plan, b.Registry)
		if len(errs) == 0 {
			return plan, "", nil
		}

		log.Printf("[Planner] Plan rejected (attempt %d): %v", attempt+1, errs)
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(fmt.Sprintf("The plan was rejected: %v\nFix the listed problems and call propose_plan again.", errs))},
		})
	}

	return nil, "", fmt.Errorf("planner could not produce a valid plan")
}

func (b *PlannerBrain) plannerMessages(chatID, input string) ([]llms.MessageContent, error) {
	plannerPrompt, err := b.Prompts.GetPlannerPrompt()
	if err != nil {
		return nil, fmt.Errorf("failed to load planner prompt: %v", err)
	}
	if identity, err := b.Prompts.GetSystemPrompt(); err == nil {
		plannerPrompt = identity + "\n\n---\n\n" + plannerPrompt
	}

	var capDescriptions []string
	for _, name := range b.Registry.Names() {
		c, _ := b.Registry.Lookup(name)
		line := fmt.Sprintf("- %s: %s (required args: %s)", c.Name, c.Description, strings.Join(c.Required, ", "))
		capDescriptions = append(capDescriptions, line)
	}
	fullPrompt := fmt.Sprintf("%s\n\n## Available Capabilities:\n%s", plannerPrompt, strings.Join(capDescriptions, "\n"))

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(fullPrompt)},
		},
	}
	if b.History != nil {
		history, _ := b.History.GetHistory(chatID, 5)
		messages = append(messages, history...)
	}
	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(input)},
	})
	return messages, nil
}

func plannerTools() []llms.Tool {
	return []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "propose_plan",
				Description: "Submit a dependency plan of capability invocations. Steps with no dependency between them run concurrently.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"steps": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"step_id": map[string]any{
										"type":        "string",
										"description": "Short unique identifier, e.g. 'extract' or 'upload'",
									},
									"capability": map[string]any{
										"type": "string",
									},
									"args": map[string]any{
										"type":        "object",
										"description": "Arguments. Use {step_id.key} to reference an earlier step's output, {blackboard.key} for shared state, {env.NAME} for environment values.",
									},
									"depends_on": map[string]any{
										"type":  "array",
										"items": map[string]any{"type": "string"},
									},
									"description": map[string]any{
										"type": "string",
									},
								},
								"required": []string{"step_id", "capability", "args"},
							},
						},
					},
					"required": []string{"steps"},
				},
			},
		},
	}
}

func (b *PlannerBrain) assemblePlan(goal string, proposal *proposedPlan) *engine.Plan {
	steps := make([]engine.Step, 0, len(proposal.Steps))
	for _, ps := range proposal.Steps {
		args := ps.Args
		if args == nil {
			args = map[string]any{}
		}
		steps = append(steps, engine.Step{
			ID:          ps.StepID,
			Capability:  ps.Capability,
			Args:        args,
			DependsOn:   ps.DependsOn,
			Description: ps.Description,
		})
	}
	plan := engine.NewPlan(goal, steps)
	b.normalizeArgs(plan)
	return plan
}

// normalizeArgs rewrites the loose {prev_step_output} placeholder models
// tend to emit into a concrete reference to the step's first dependency.
func (b *PlannerBrain) normalizeArgs(plan *engine.Plan) {
	for i := range plan.Steps {
		step := &plan.Steps[i]
		if len(step.DependsOn) == 0 {
			continue
		}
		replacement := "{" + b.depReference(plan, step.DependsOn[0]) + "}"
		step.Args = rewritePlaceholder(step.Args, "{prev_step_output}", replacement).(map[string]any)
	}
}

// depReference picks the most useful output expression for a dependency,
// preferring declared tabular outputs.
func (b *PlannerBrain) depReference(plan *engine.Plan, depID string) string {
	dep := plan.Step(depID)
	if dep == nil {
		return depID + ".output"
	}
	c, ok := b.Registry.Lookup(dep.Capability)
	if !ok || len(c.OutputKeys) == 0 {
		return depID + ".output"
	}
	if _, ok := c.OutputKeys["rows"]; ok {
		return depID + ".rows"
	}
	keys := make([]string, 0, len(c.OutputKeys))
	for k := range c.OutputKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return depID + "." + keys[0]
}

func rewritePlaceholder(v any, from, to string) any {
	switch val := v.(type) {
	case string:
		if val == from {
			// Whole-argument placeholder keeps the referenced value's
			// native type.
			return to
		}
		return strings.ReplaceAll(val, from, to)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = rewritePlaceholder(item, from, to)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = rewritePlaceholder(item, from, to)
		}
		return out
	default:
		return v
	}
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// fallbackPlan builds the extract/upload/share/notify pipeline without a
// model. It needs a URL somewhere in the goal text.
func (b *PlannerBrain) fallbackPlan(chatID, input string) *engine.Plan {
	url := urlPattern.FindString(input)
	if url == "" {
		return nil
	}
	steps := []engine.Step{
		{
			ID:          "extract",
			Capability:  "extract_webpage",
			Args:        map[string]any{"url": url},
			Description: "Extract tabular content from the page",
		},
		{
			ID:         "upload",
			Capability: "sheet_upsert",
			Args: map[string]any{
				"spreadsheet_title": "Extracted Data",
				"sheet_name":        "Sheet1",
				"rows":              "{extract.rows}",
			},
			DependsOn:   []string{"extract"},
			Description: "Write extracted rows to a spreadsheet",
		},
		{
			ID:          "share",
			Capability:  "share_file",
			Args:        map[string]any{"file_id": "{upload.spreadsheet_id}"},
			DependsOn:   []string{"upload"},
			Description: "Create a shareable link",
		},
		{
			ID:         "notify",
			Capability: "notify_chat",
			Args: map[string]any{
				"chat_id": chatID,
				"text":    "Your data is ready: {share.link}",
			},
			DependsOn:   []string{"share"},
			Description: "Send the link back to the chat",
		},
	}
	return engine.NewPlan(input, steps)
}

// renderReport formats an execution report for the chat user. Results are
// listed in completion order.
func renderReport(report *engine.ExecutionReport) string {
	var sb strings.Builder
	succeeded := 0
	for _, r := range report.Results {
		if r.Status == engine.StepSucceeded {
			succeeded++
		}
	}

	switch report.Status {
	case engine.PlanSucceeded:
		sb.WriteString(fmt.Sprintf("Done. All %d steps completed.\n", len(report.Results)))
	default:
		sb.WriteString(fmt.Sprintf("Finished with problems: %d/%d steps completed.\n", succeeded, len(report.Results)))
	}

	for _, r := range report.Results {
		switch r.Status {
		case engine.StepSucceeded:
			sb.WriteString(fmt.Sprintf("  [ok]   %s (%s) in %s\n", r.StepID, r.Capability, r.Duration.Round(time.Millisecond)))
		case engine.StepFailed:
			sb.WriteString(fmt.Sprintf("  [fail] %s (%s): %s\n", r.StepID, r.Capability, r.Error))
		case engine.StepSkipped:
			sb.WriteString(fmt.Sprintf("  [skip] %s: %s\n", r.StepID, r.Error))
		}
	}

	if url, ok := report.Blackboard["sheet_url"].(string); ok {
		sb.WriteString("Sheet: " + url + "\n")
	}
	if link, ok := report.Blackboard["share_link"].(string); ok {
		sb.WriteString("Share link: " + link + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
