package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/user/taskpilot/internal/types"
)

type echoTool struct{ name string }

func (e *echoTool) Name() string {
	if e.name != "" {
		return e.name
	}
	return "echo"
}
func (e *echoTool) Description() string { return "Echoes input" }
func (e *echoTool) Parameters() json.RawMessage {
	return Schema{
		{Name: "text", Type: FieldString, Required: true, MinLength: 1, Description: "Text to echo"},
		{Name: "times", Type: FieldInteger},
	}.JSON()
}
func (e *echoTool) Execute(_ context.Context, args json.RawMessage) (string, error) {
	var p struct {
		Text string `json:"text"`
	}
	json.Unmarshal(args, &p)
	return p.Text, nil
}

type failingTool struct{}

func (failingTool) Name() string                { return "fail" }
func (failingTool) Description() string         { return "Always fails" }
func (failingTool) Parameters() json.RawMessage { return Schema{}.JSON() }
func (failingTool) Execute(context.Context, json.RawMessage) (string, error) {
	return "", errors.New("store unavailable")
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&echoTool{}); err != nil {
		t.Fatal(err)
	}

	tool, ok := r.Get("echo")
	if !ok {
		t.Fatal("expected to find echo tool")
	}
	if tool.Name() != "echo" {
		t.Errorf("expected name 'echo', got %q", tool.Name())
	}
}

func TestRegistryGetMissing(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("missing")
	if ok {
		t.Fatal("expected not to find missing tool")
	}
}

func TestRegistryAllSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(&echoTool{name: name}); err != nil {
			t.Fatal(err)
		}
	}
	names := r.Names()
	want := []string{"alpha", "mid", "zeta"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
	llmTools := r.AsLLMTools()
	if llmTools[0].Function.Name != "alpha" || llmTools[0].Type != "function" {
		t.Errorf("unexpected first llm tool: %+v", llmTools[0])
	}
}

func TestRegistryAsLLMTools(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{})
	llmTools := r.AsLLMTools()
	if len(llmTools) != 1 {
		t.Fatalf("expected 1 llm tool, got %d", len(llmTools))
	}
	var schema map[string]any
	if err := json.Unmarshal(llmTools[0].Function.Parameters, &schema); err != nil {
		t.Fatal(err)
	}
	if schema["type"] != "object" {
		t.Errorf("expected object schema, got %v", schema["type"])
	}
}

func TestRegistryRegisterBadSchema(t *testing.T) {
	r := NewRegistry()
	bad := &rawSchemaTool{params: json.RawMessage(`{"type": 12}`)}
	if err := r.Register(bad); err == nil {
		t.Fatal("expected schema compile error")
	}
}

type rawSchemaTool struct{ params json.RawMessage }

func (t *rawSchemaTool) Name() string                { return "raw" }
func (t *rawSchemaTool) Description() string         { return "" }
func (t *rawSchemaTool) Parameters() json.RawMessage { return t.params }
func (t *rawSchemaTool) Execute(context.Context, json.RawMessage) (string, error) {
	return "", nil
}

func TestRegistryInvoke(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{})

	out, err := r.Invoke(context.Background(), "echo", json.RawMessage(`{"text":"hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	if out != "hi" {
		t.Errorf("expected 'hi', got %q", out)
	}
}

func TestRegistryInvokeValidation(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{})
	ctx := context.Background()

	cases := []json.RawMessage{
		json.RawMessage(`{}`),
		json.RawMessage(`{"text":""}`),
		json.RawMessage(`{"text":5}`),
		json.RawMessage(`{"text":"a","times":1.5}`),
		json.RawMessage(`{"text":"a","extra":true}`),
		json.RawMessage(`{not json`),
		nil,
	}
	for _, args := range cases {
		_, err := r.Invoke(ctx, "echo", args)
		if !types.IsValidation(err) {
			t.Errorf("args %s: expected validation error, got %v", args, err)
		}
	}
}

func TestRegistryInvokeEmptyArgsForNoFieldTool(t *testing.T) {
	r := NewRegistry()
	r.Register(&rawSchemaTool{params: Schema{}.JSON()})
	for _, args := range []json.RawMessage{nil, json.RawMessage(`null`), json.RawMessage(` `)} {
		if _, err := r.Invoke(context.Background(), "raw", args); err != nil {
			t.Errorf("args %q: unexpected error %v", args, err)
		}
	}
}

func TestRegistryInvokeUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Invoke(context.Background(), "nope", nil)
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
	if err.Error() != `unknown tool "nope"` {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestRegistryObserver(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{})
	r.Register(failingTool{})

	var outcomes []string
	r.Observe(func(tool, outcome string) {
		outcomes = append(outcomes, tool+":"+outcome)
	})

	ctx := context.Background()
	r.Invoke(ctx, "echo", json.RawMessage(`{"text":"x"}`))
	r.Invoke(ctx, "echo", json.RawMessage(`{}`))
	r.Invoke(ctx, "fail", nil)
	r.Invoke(ctx, "ghost", nil)

	got := strings.Join(outcomes, ",")
	want := "echo:ok,echo:invalid,fail:error,ghost:unknown"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestSchemaMap(t *testing.T) {
	m := Schema{
		{Name: "id", Type: FieldInteger, Required: true},
		{Name: "title", Type: FieldString, MinLength: 1},
		{Name: "isComplete", Type: FieldBoolean},
	}.Map()

	required, _ := m["required"].([]string)
	if len(required) != 1 || required[0] != "id" {
		t.Errorf("unexpected required list %v", m["required"])
	}
	props := m["properties"].(map[string]any)
	title := props["title"].(map[string]any)
	if title["minLength"] != 1 {
		t.Errorf("expected minLength 1, got %v", title["minLength"])
	}
	if _, ok := (Schema{}).Map()["required"]; ok {
		t.Error("empty schema should omit required")
	}
}
