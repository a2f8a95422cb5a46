package mcp

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/user/taskpilot/internal/runtime"
	"github.com/user/taskpilot/internal/runtime/tools"
	"github.com/user/taskpilot/internal/state"
)

func setupRegistry(t *testing.T) *runtime.Registry {
	t.Helper()
	store, err := state.NewTaskStore(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	r := runtime.NewRegistry()
	if err := tools.RegisterTaskTools(r, store); err != nil {
		t.Fatal(err)
	}
	return r
}

func text(t *testing.T, res *mcpsdk.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("expected one content block, got %d", len(res.Content))
	}
	tc, ok := res.Content[0].(*mcpsdk.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return tc.Text
}

func call(t *testing.T, r *runtime.Registry, name, args string) *mcpsdk.CallToolResult {
	t.Helper()
	res, err := toolHandler(r, name)(context.Background(), &mcpsdk.CallToolRequest{
		Params: &mcpsdk.CallToolParamsRaw{Name: name, Arguments: json.RawMessage(args)},
	})
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestToolHandler(t *testing.T) {
	r := setupRegistry(t)

	res := call(t, r, "createTask", `{"title":"Buy milk"}`)
	if res.IsError || text(t, res) != `Task created successfully: "Buy milk" (ID: 1)` {
		t.Errorf("unexpected create result %+v", res)
	}

	res = call(t, r, "getTasks", `{}`)
	if got := text(t, res); got != "1: Buy milk (Incomplete)" {
		t.Errorf("unexpected list %q", got)
	}

	res = call(t, r, "deleteTask", `{"id":999}`)
	if res.IsError || text(t, res) != "Task with ID 999 not found." {
		t.Errorf("not found should be a normal result, got %+v", res)
	}
}

func TestToolHandlerValidationError(t *testing.T) {
	r := setupRegistry(t)
	res := call(t, r, "createTask", `{"title":""}`)
	if !res.IsError {
		t.Fatal("expected IsError for invalid arguments")
	}
	if !strings.Contains(text(t, res), "validation failed") {
		t.Errorf("unexpected error text %q", text(t, res))
	}
}

func TestServerOverInMemoryTransport(t *testing.T) {
	r := setupRegistry(t)
	server, err := NewServer(r)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	serverT, clientT := mcpsdk.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ss.Close()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cs.Close()

	list, err := cs.ListTools(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	if got := strings.Join(names, ","); got != "createTask,deleteTask,getTask,getTasks,updateTask" {
		t.Errorf("unexpected tools %s", got)
	}

	res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "createTask",
		Arguments: map[string]any{"title": "From MCP"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if text(t, res) != `Task created successfully: "From MCP" (ID: 1)` {
		t.Errorf("unexpected result %q", text(t, res))
	}
}
