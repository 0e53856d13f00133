package customcss

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/RemmyNine/chrome-customCSS/store"
)

var testImpl = &mcp.Implementation{Name: "customcss-test", Version: "0.1.0"}

// mcpSession creates a Service, registers MCP tools, and returns a connected
// client session that can call tools end-to-end.
func mcpSession(t *testing.T) (*Service, *fakeDriver, *mcp.ClientSession) {
	t.Helper()
	svc, drv := testService(t, nil)

	srv := mcp.NewServer(testImpl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()

	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })

	return svc, drv, session
}

// callTool invokes a tool and returns the JSON text from the first TextContent.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if result.IsError {
		t.Fatalf("CallTool(%s) tool error: %v", name, result.Content)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text
}

func TestMCP_SetAndGetRule(t *testing.T) {
	_, drv, session := mcpSession(t)
	tab := drv.addTab("1", "https://example.com/")

	text := callTool(t, session, "customcss_set_rule", map[string]any{
		"domain": "example.com",
		"css":    "body{color:red}",
	})

	var rule store.Rule
	if err := json.Unmarshal([]byte(text), &rule); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rule.Domain != "example.com" || rule.CSS != "body{color:red}" {
		t.Errorf("rule = %+v", rule)
	}
	if tab.lastInserted() != "body{color:red}" {
		t.Errorf("inserted = %v, want applied through MCP set", tab.inserted)
	}

	text = callTool(t, session, "customcss_get_rule", map[string]any{"domain": "example.com"})
	if err := json.Unmarshal([]byte(text), &rule); err != nil {
		t.Fatalf("unmarshal get: %v", err)
	}
	if rule.CSS != "body{color:red}" {
		t.Errorf("get rule CSS = %q", rule.CSS)
	}
}

func TestMCP_GetRule_Absent(t *testing.T) {
	_, _, session := mcpSession(t)

	text := callTool(t, session, "customcss_get_rule", map[string]any{"domain": "nothing.example"})
	if !strings.Contains(text, "no rule") {
		t.Errorf("absent get = %q, want 'no rule' marker", text)
	}
}

func TestMCP_SetRule_InvalidCSSIsToolError(t *testing.T) {
	_, _, session := mcpSession(t)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "customcss_set_rule",
		Arguments: map[string]any{"domain": "example.com", "css": "body{color:red"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Fatal("invalid CSS did not produce a tool error")
	}
}

func TestMCP_ListAndDelete(t *testing.T) {
	_, _, session := mcpSession(t)

	callTool(t, session, "customcss_set_rule", map[string]any{"domain": "a.example", "css": "a{}"})
	callTool(t, session, "customcss_set_rule", map[string]any{"domain": "b.example", "css": "b{}"})

	text := callTool(t, session, "customcss_list_rules", map[string]any{})
	var rules []store.Rule
	if err := json.Unmarshal([]byte(text), &rules); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(rules) != 2 || rules[0].Domain != "a.example" {
		t.Errorf("rules = %+v, want two ordered rules", rules)
	}

	callTool(t, session, "customcss_delete_rule", map[string]any{"domain": "a.example"})

	text = callTool(t, session, "customcss_list_rules", map[string]any{})
	if err := json.Unmarshal([]byte(text), &rules); err != nil {
		t.Fatalf("unmarshal after delete: %v", err)
	}
	if len(rules) != 1 || rules[0].Domain != "b.example" {
		t.Errorf("rules after delete = %+v", rules)
	}
}

func TestMCP_SaveActive(t *testing.T) {
	svc, drv, session := mcpSession(t)
	tab := drv.addTab("7", "https://example.com/page")

	text := callTool(t, session, "customcss_save_active", map[string]any{"css": "main{width:60ch}"})
	if !strings.Contains(text, "example.com") {
		t.Errorf("save_active = %q, want resolved domain in response", text)
	}

	if got, _ := svc.GetRule(context.Background(), "example.com"); got == nil || got.CSS != "main{width:60ch}" {
		t.Errorf("stored = %+v", got)
	}
	if tab.lastInserted() != "main{width:60ch}" {
		t.Errorf("inserted = %v", tab.inserted)
	}

	// clear_active reuses the session opened by save_active.
	callTool(t, session, "customcss_clear_active", map[string]any{})
	if got, _ := svc.GetRule(context.Background(), "example.com"); got != nil {
		t.Errorf("rule survived clear_active: %+v", got)
	}
}

func TestMCP_Stats(t *testing.T) {
	_, drv, session := mcpSession(t)
	drv.addTab("1", "https://example.com/")
	callTool(t, session, "customcss_set_rule", map[string]any{"domain": "example.com", "css": "body{}"})

	text := callTool(t, session, "customcss_stats", map[string]any{})
	var stats ServiceStats
	if err := json.Unmarshal([]byte(text), &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if stats.Rules != 1 {
		t.Errorf("Rules = %d, want 1", stats.Rules)
	}
	if stats.OpenTabs != 1 {
		t.Errorf("OpenTabs = %d, want 1", stats.OpenTabs)
	}
}
