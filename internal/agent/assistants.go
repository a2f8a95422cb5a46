package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"

	llmopenai "github.com/user/taskpilot/pkg/llm/openai"
)

// Assistants is a HostedBackend over the OpenAI Assistants API.
type Assistants struct {
	client      openai.Client
	assistantID string
}

// NewAssistants creates a backend that runs assistantID. An empty baseURL
// targets api.openai.com.
func NewAssistants(baseURL, apiKey, assistantID string) *Assistants {
	return &Assistants{
		client:      openai.NewClient(llmopenai.RequestOptions(baseURL, apiKey)...),
		assistantID: assistantID,
	}
}

func (b *Assistants) CreateThread(ctx context.Context) (string, error) {
	thread, err := b.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return "", err
	}
	return thread.ID, nil
}

func (b *Assistants) AddUserMessage(ctx context.Context, threadID, text string) error {
	_, err := b.client.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRoleUser,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(text),
		},
	})
	return err
}

func (b *Assistants) StartRun(ctx context.Context, threadID string) (*RemoteRun, error) {
	run, err := b.client.Beta.Threads.Runs.New(ctx, threadID, openai.BetaThreadRunNewParams{
		AssistantID: b.assistantID,
	})
	if err != nil {
		return nil, err
	}
	return toRemoteRun(run), nil
}

func (b *Assistants) GetRun(ctx context.Context, threadID, runID string) (*RemoteRun, error) {
	run, err := b.client.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		return nil, err
	}
	return toRemoteRun(run), nil
}

func (b *Assistants) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (*RemoteRun, error) {
	params := openai.BetaThreadRunSubmitToolOutputsParams{
		ToolOutputs: make([]openai.BetaThreadRunSubmitToolOutputsParamsToolOutput, 0, len(outputs)),
	}
	for _, o := range outputs {
		params.ToolOutputs = append(params.ToolOutputs, openai.BetaThreadRunSubmitToolOutputsParamsToolOutput{
			ToolCallID: openai.String(o.CallID),
			Output:     openai.String(o.Output),
		})
	}
	run, err := b.client.Beta.Threads.Runs.SubmitToolOutputs(ctx, threadID, runID, params)
	if err != nil {
		return nil, err
	}
	return toRemoteRun(run), nil
}

// LatestReply returns the text of the newest assistant message the run
// produced.
func (b *Assistants) LatestReply(ctx context.Context, threadID, runID string) (string, error) {
	page, err := b.client.Beta.Threads.Messages.List(ctx, threadID, openai.BetaThreadMessageListParams{
		Order: openai.BetaThreadMessageListParamsOrderDesc,
		Limit: openai.Int(10),
		RunID: openai.String(runID),
	})
	if err != nil {
		return "", err
	}
	for _, msg := range page.Data {
		if string(msg.Role) != "assistant" {
			continue
		}
		var parts []string
		for _, c := range msg.Content {
			if c.Type == "text" {
				parts = append(parts, c.Text.Value)
			}
		}
		return strings.Join(parts, "\n"), nil
	}
	return "", fmt.Errorf("run %s produced no assistant message", runID)
}

func toRemoteRun(run *openai.Run) *RemoteRun {
	out := &RemoteRun{
		ID:        run.ID,
		Status:    string(run.Status),
		LastError: run.LastError.Message,
	}
	for _, tc := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, PendingToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out
}

var _ HostedBackend = (*Assistants)(nil)
