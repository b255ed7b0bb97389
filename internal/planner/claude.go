package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"github.com/crewkit/crew/pkg/models"
)

// decompositionPrompt asks the model to break a request into plan steps.
// The mode hint steers whether steps should be parallel-safe or sequential.
const decompositionPrompt = `Break this user request into subtasks. Each task should be sized for a single coding agent to complete.

Execution mode: %s
%s

User request:
%s

Return ONLY a JSON array of tasks with this exact structure (no other text):
[
  {
    "description": "Short task description",
    "instructions": "Full instructions for the agent executing this task",
    "relevant_files": ["optional/path/hints.go"],
    "depends_on": ["description of dependency 1"]
  }
]

Guidelines:
- Only add dependencies when truly necessary (task A must complete before task B)
- Each task should be completable by a single agent in one session
- Use empty array [] for depends_on if there are no dependencies`

// modeGuidance maps an execution mode to extra prompt guidance.
func modeGuidance(mode models.ExecutionMode) string {
	switch mode {
	case models.ModeDirect:
		return "Tasks run sequentially in one session; prefer a linear chain of small steps."
	default:
		return "Independent tasks run in parallel; keep tasks as independent as possible and avoid shared files between parallel tasks."
	}
}

// decomposedTask is the JSON structure returned by the model for one task.
type decomposedTask struct {
	Description   string   `json:"description"`
	Instructions  string   `json:"instructions"`
	RelevantFiles []string `json:"relevant_files"`
	DependsOn     []string `json:"depends_on"`
}

// ClaudePlanner decomposes requests via the Anthropic API. On API or parse
// errors it falls back to the heuristic planner so planning always succeeds
// when a request is well-formed.
type ClaudePlanner struct {
	client   anthropic.Client
	model    anthropic.Model
	fallback *HeuristicPlanner
}

// NewClaudePlanner creates a planner backed by the Anthropic API.
// If apiKey is empty, the ANTHROPIC_API_KEY environment variable is used.
func NewClaudePlanner(apiKey, model string) (*ClaudePlanner, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
	}

	m := anthropic.Model(model)
	if model == "" {
		m = anthropic.ModelClaudeSonnet4_20250514
	}

	return &ClaudePlanner{
		client:   anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:    m,
		fallback: NewHeuristicPlanner(),
	}, nil
}

// Verify ClaudePlanner implements Planner at compile time.
var _ Planner = (*ClaudePlanner)(nil)

// Plan asks the model to decompose the request, then validates and scores
// the resulting plan.
func (p *ClaudePlanner) Plan(ctx context.Context, request string, mode models.ExecutionMode) (*models.TaskPlan, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return nil, fmt.Errorf("empty request")
	}

	prompt := fmt.Sprintf(decompositionPrompt, mode, modeGuidance(mode), request)

	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return p.fallback.Plan(ctx, request, mode)
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			response.WriteString(variant.Text)
		}
	}

	plan, err := parseDecomposition(response.String(), request, mode)
	if err != nil {
		return p.fallback.Plan(ctx, request, mode)
	}

	return plan, nil
}

// parseDecomposition parses the model's JSON response into a drafted plan.
func parseDecomposition(response, request string, mode models.ExecutionMode) (*models.TaskPlan, error) {
	// The model may wrap the array in prose; extract the outermost array.
	jsonStart := strings.Index(response, "[")
	jsonEnd := strings.LastIndex(response, "]")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		return nil, fmt.Errorf("no valid JSON array found in response")
	}

	var decomposed []decomposedTask
	if err := json.Unmarshal([]byte(response[jsonStart:jsonEnd+1]), &decomposed); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w", err)
	}
	if len(decomposed) == 0 {
		return nil, fmt.Errorf("empty task list returned")
	}

	plan := &models.TaskPlan{
		ID:          uuid.New().String()[:8],
		Description: request,
		Mode:        mode,
		Status:      models.PlanStatusDraft,
		CreatedAt:   time.Now(),
	}

	// Dependencies come back as descriptions; resolve them to step IDs.
	descToID := make(map[string]string, len(decomposed))
	for i, dt := range decomposed {
		id := fmt.Sprintf("%s-step-%d", plan.ID, i+1)
		descToID[dt.Description] = id
		instructions := dt.Instructions
		if instructions == "" {
			instructions = dt.Description
		}
		plan.Steps = append(plan.Steps, &models.Task{
			ID:            id,
			Description:   dt.Description,
			Instructions:  instructions,
			RelevantFiles: dt.RelevantFiles,
			Priority:      i,
			Status:        models.TaskStatusPending,
		})
	}

	for i, dt := range decomposed {
		for _, depDesc := range dt.DependsOn {
			depID, ok := descToID[depDesc]
			if !ok {
				return nil, fmt.Errorf("unknown dependency %q for task %q", depDesc, dt.Description)
			}
			plan.Steps[i].DependsOn = append(plan.Steps[i].DependsOn, depID)
		}
	}

	return Finalize(plan)
}
