package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAssistantsBackend(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/threads":
			w.Write([]byte(`{"id":"thread_abc","object":"thread","created_at":1}`))
		case r.Method == http.MethodPost && r.URL.Path == "/threads/thread_abc/runs":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if body["assistant_id"] != "asst_1" {
				t.Errorf("unexpected assistant_id %v", body["assistant_id"])
			}
			w.Write([]byte(`{"id":"run_1","object":"thread.run","status":"requires_action",
				"required_action":{"type":"submit_tool_outputs","submit_tool_outputs":{"tool_calls":[
					{"id":"call_1","type":"function","function":{"name":"getTasks","arguments":"{}"}}]}}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/threads/thread_abc/messages":
			if r.URL.Query().Get("run_id") != "run_1" {
				t.Errorf("expected run_id filter, got %q", r.URL.RawQuery)
			}
			w.Write([]byte(`{"object":"list","data":[
				{"id":"msg_2","object":"thread.message","role":"assistant","content":[{"type":"text","text":{"value":"No tasks found.","annotations":[]}}]},
				{"id":"msg_1","object":"thread.message","role":"user","content":[{"type":"text","text":{"value":"list","annotations":[]}}]}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	b := NewAssistants(srv.URL, "test-key", "asst_1")
	ctx := context.Background()

	thread, err := b.CreateThread(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if thread != "thread_abc" {
		t.Fatalf("thread = %q", thread)
	}

	run, err := b.StartRun(ctx, thread)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != RunRequiresAction || len(run.ToolCalls) != 1 {
		t.Fatalf("unexpected run %+v", run)
	}
	if tc := run.ToolCalls[0]; tc.ID != "call_1" || tc.Name != "getTasks" || string(tc.Arguments) != "{}" {
		t.Errorf("unexpected tool call %+v", tc)
	}

	reply, err := b.LatestReply(ctx, thread, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reply != "No tasks found." {
		t.Errorf("reply = %q", reply)
	}

	if got := strings.Join(paths, ","); !strings.Contains(got, "POST /threads/thread_abc/runs") {
		t.Errorf("unexpected requests %s", got)
	}
}
