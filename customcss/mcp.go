package customcss

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/RemmyNine/chrome-customCSS/editor"
	"github.com/RemmyNine/chrome-customCSS/kit"
)

// RegisterMCP registers all customcss tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerSetRuleTool(srv)
	s.registerGetRuleTool(srv)
	s.registerListRulesTool(srv)
	s.registerDeleteRuleTool(srv)
	s.registerSaveActiveTool(srv)
	s.registerClearActiveTool(srv)
	s.registerStatsTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// --- set_rule ---

type setRuleRequest struct {
	Domain string `json:"domain"`
	CSS    string `json:"css"`
}

func (s *Service) registerSetRuleTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "customcss_set_rule",
		Description: "Store a CSS rule for a domain and apply it to the domain's open tabs. Empty CSS deletes the rule.",
		InputSchema: inputSchema(map[string]any{
			"domain": map[string]any{"type": "string", "description": "Domain key, e.g. example.com"},
			"css":    map[string]any{"type": "string", "description": "CSS source text"},
		}, []string{"domain", "css"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*setRuleRequest)
		rule, err := s.SetRule(ctx, r.Domain, r.CSS)
		if err != nil {
			return nil, err
		}
		if rule == nil {
			return map[string]string{"status": "cleared", "domain": r.Domain}, nil
		}
		return rule, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r setRuleRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- get_rule ---

type getRuleRequest struct {
	Domain string `json:"domain"`
}

func (s *Service) registerGetRuleTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "customcss_get_rule",
		Description: "Get the stored CSS rule for a domain.",
		InputSchema: inputSchema(map[string]any{
			"domain": map[string]any{"type": "string", "description": "Domain key"},
		}, []string{"domain"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*getRuleRequest)
		rule, err := s.GetRule(ctx, r.Domain)
		if err != nil {
			return nil, err
		}
		if rule == nil {
			return map[string]string{"error": "no rule for domain"}, nil
		}
		return rule, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r getRuleRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- list_rules ---

func (s *Service) registerListRulesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "customcss_list_rules",
		Description: "List all stored CSS rules, ordered by domain.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return s.ListRules(ctx)
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- delete_rule ---

func (s *Service) registerDeleteRuleTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "customcss_delete_rule",
		Description: "Delete the CSS rule for a domain and strip it from the domain's open tabs.",
		InputSchema: inputSchema(map[string]any{
			"domain": map[string]any{"type": "string", "description": "Domain key to delete"},
		}, []string{"domain"}),
	}

	type delReq struct {
		Domain string `json:"domain"`
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*delReq)
		if err := s.DeleteRule(ctx, r.Domain); err != nil {
			return nil, err
		}
		return map[string]string{"status": "deleted", "domain": r.Domain}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r delReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- save_active ---

type saveActiveRequest struct {
	CSS string `json:"css"`
}

func (s *Service) registerSaveActiveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "customcss_save_active",
		Description: "Save CSS for the domain of the currently active browser tab. Opens an editor session if none is open. Empty CSS clears the rule.",
		InputSchema: inputSchema(map[string]any{
			"css": map[string]any{"type": "string", "description": "CSS source text"},
		}, []string{"css"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*saveActiveRequest)
		sess, err := s.sessionOrOpen(ctx)
		if err != nil {
			return nil, err
		}
		if err := sess.Save(ctx, r.CSS); err != nil {
			return nil, err
		}
		return map[string]string{"status": "saved", "domain": sess.Domain, "tab": sess.Tab.ID}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r saveActiveRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- clear_active ---

func (s *Service) registerClearActiveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "customcss_clear_active",
		Description: "Clear the CSS rule for the domain of the currently active browser tab.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		sess, err := s.sessionOrOpen(ctx)
		if err != nil {
			return nil, err
		}
		if err := sess.Clear(ctx); err != nil {
			return nil, err
		}
		return map[string]string{"status": "cleared", "domain": sess.Domain}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- stats ---

func (s *Service) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "customcss_stats",
		Description: "Get customcss statistics: rule count, navigation watcher counters, database watcher counters, open tabs.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return s.Stats(ctx)
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// sessionOrOpen returns the current session, opening one on the active tab
// when none exists. MCP callers have no separate "open the popup" gesture.
func (s *Service) sessionOrOpen(ctx context.Context) (*editor.Session, error) {
	if cur := s.Session(); cur != nil {
		return cur, nil
	}
	return s.OpenSession(ctx)
}
