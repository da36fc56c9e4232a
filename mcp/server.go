// Package mcp provides the MCP (Model Context Protocol) server for minet.
// It answers questions about a stored reaction network over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/Benny93/minet-go/internal/graph"
	"github.com/Benny93/minet-go/internal/mine"
	"github.com/Benny93/minet-go/internal/storage"
)

const (
	defaultSearchLimit = 20
	defaultStartLimit  = 50
)

// Store is the part of storage.Backend the server reads from.
type Store interface {
	GetNode(ctx context.Context, id int) (*graph.Node, error)
	FindCompound(ctx context.Context, mineID string) (*graph.Node, error)
	Neighbors(ctx context.Context, id int, dir storage.Direction) ([]*graph.Node, error)
	NodesByKind(ctx context.Context, kind graph.NodeKind) ([]*graph.Node, error)
	SearchCompounds(ctx context.Context, query string, limit int) ([]storage.SearchResult, error)
	Record(ctx context.Context, id string) (*storage.Record, error)
	Meta(ctx context.Context) (*storage.RunMeta, error)
	NodeCount() int
	EdgeCount() int
}

// Server represents the MCP server.
type Server struct {
	store  Store
	log    *zap.Logger
	server *mcp.Server
}

// Tool represents an MCP tool.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Resource represents an MCP resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// NewServer creates a new MCP server over store.
func NewServer(store Store, version string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{store: store, log: log}
	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "minet",
		Version: version,
	}, nil)

	s.registerTools()
	s.registerResources()
	return s
}

// Serve runs the server on stdin and stdout until the client disconnects
// or ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []Tool {
	return []Tool{
		{
			Name:        "minet_compound",
			Description: "Show a compound of the network: its node, record and the reactions it takes part in.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"id": {Type: "string", Description: "MINE or KEGG compound id, integer node id, or compound name"},
				},
				Required: []string{"id"},
			},
		},
		{
			Name:        "minet_reaction",
			Description: "Show a reaction of the network: its equation, operators and the four role nodes.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"id": {Type: "string", Description: "Reaction id"},
				},
				Required: []string{"id"},
			},
		},
		{
			Name:        "minet_neighbors",
			Description: "List the nodes adjacent to a node.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"node":      {Type: "integer", Description: "Node id"},
					"direction": {Type: "string", Description: "out, in or both", Enum: []any{"out", "in", "both"}},
				},
				Required: []string{"node"},
			},
		},
		{
			Name:        "minet_start_nodes",
			Description: "List the start compounds of the network.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"limit": {Type: "integer", Description: "Maximum number of nodes"},
				},
			},
		},
		{
			Name:        "minet_search",
			Description: "Search compounds by name, formula or id. Returns ranked compound nodes.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"query": {Type: "string", Description: "Search text"},
					"limit": {Type: "integer", Description: "Maximum number of results"},
				},
				Required: []string{"query"},
			},
		},
	}
}

// ListResources returns all registered resources.
func (s *Server) ListResources() []Resource {
	return []Resource{
		{
			URI:         "minet://overview",
			Name:        "Network Overview",
			Description: "Run metadata and node counts of the stored network",
			MimeType:    "text/markdown",
		},
		{
			URI:         "minet://schema",
			Name:        "Network Schema",
			Description: "Node kinds and edge rules of the reaction network",
			MimeType:    "text/markdown",
		},
	}
}

// CallTool executes a tool with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "minet_compound":
		id, _ := args["id"].(string)
		return handleCompound(ctx, s.store, id)
	case "minet_reaction":
		id, _ := args["id"].(string)
		return handleReaction(ctx, s.store, id)
	case "minet_neighbors":
		node := intArg(args, "node", 0)
		dir, _ := args["direction"].(string)
		return handleNeighbors(ctx, s.store, node, dir)
	case "minet_start_nodes":
		return handleStartNodes(ctx, s.store, intArg(args, "limit", defaultStartLimit))
	case "minet_search":
		query, _ := args["query"].(string)
		return handleSearch(ctx, s.store, query, intArg(args, "limit", defaultSearchLimit))
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case "minet://overview":
		return getOverview(ctx, s.store)
	case "minet://schema":
		return getSchema(), nil
	default:
		return "", fmt.Errorf("unknown resource: %s", uri)
	}
}

// intArg reads an integer argument. JSON numbers arrive as float64.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	case json.Number:
		if n, err := v.Int64(); err == nil && n > 0 {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// Tool Handlers

// resolveCompound finds the compound node for an id: an integer node id, a
// MINE or KEGG compound id, or else the best name match.
func resolveCompound(ctx context.Context, store Store, id string) (*graph.Node, error) {
	if n, err := strconv.Atoi(id); err == nil {
		node, err := store.GetNode(ctx, n)
		if err != nil {
			return nil, err
		}
		if node != nil && node.Kind == graph.KindCompound {
			return node, nil
		}
		return nil, nil
	}

	node, err := store.FindCompound(ctx, id)
	if err != nil || node != nil {
		return node, err
	}

	results, err := store.SearchCompounds(ctx, id, 1)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return store.GetNode(ctx, results[0].NodeID)
}

func handleCompound(ctx context.Context, store Store, id string) (string, error) {
	if id == "" {
		return "No compound id provided", nil
	}
	node, err := resolveCompound(ctx, store, id)
	if err != nil {
		return "", err
	}
	if node == nil {
		return fmt.Sprintf("Compound '%s' not found in the network", id), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Compound %s (node %d)\n\n", node.MineID, node.ID)
	if node.Start {
		sb.WriteString("Start compound.\n\n")
	}

	rec, err := store.Record(ctx, node.MineID)
	if err != nil {
		return "", err
	}
	if rec != nil && rec.Compound != nil {
		c := rec.Compound
		if len(c.Names) > 0 {
			fmt.Fprintf(&sb, "**Names:** %s\n", strings.Join(c.Names, "; "))
		}
		if c.HasFormula() {
			fmt.Fprintf(&sb, "**Formula:** %s (%d carbons)\n", *c.Formula, mine.CarbonCount(*c.Formula))
		}
		if kegg := c.KEGGIDs(); len(kegg) > 0 {
			fmt.Fprintf(&sb, "**KEGG:** %s\n", strings.Join(kegg, ", "))
		}
		sb.WriteString("\n")
	}

	consumers, err := store.Neighbors(ctx, node.ID, storage.Outgoing)
	if err != nil {
		return "", err
	}
	producers, err := store.Neighbors(ctx, node.ID, storage.Incoming)
	if err != nil {
		return "", err
	}
	writeRoleList(&sb, "Consumed by", consumers)
	writeRoleList(&sb, "Produced by", producers)
	if len(consumers) == 0 && len(producers) == 0 {
		sb.WriteString("No reactions connect to this compound.\n")
	}

	sb.WriteString("\nNext: Use `minet_reaction` on a reaction id for its equation.")
	return sb.String(), nil
}

func writeRoleList(sb *strings.Builder, title string, nodes []*graph.Node) {
	if len(nodes) == 0 {
		return
	}
	fmt.Fprintf(sb, "## %s (%d)\n", title, len(nodes))
	for _, n := range nodes {
		fmt.Fprintf(sb, "- %s node %d of reaction %s\n", n.Kind, n.ID, n.MineID)
	}
	sb.WriteString("\n")
}

func handleReaction(ctx context.Context, store Store, id string) (string, error) {
	if id == "" {
		return "No reaction id provided", nil
	}
	roles, err := reactionNodes(ctx, store, id)
	if err != nil {
		return "", err
	}
	if len(roles) == 0 {
		return fmt.Sprintf("Reaction '%s' not found in the network", id), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Reaction %s\n\n", id)

	rec, err := store.Record(ctx, id)
	if err != nil {
		return "", err
	}
	if rec != nil && rec.Reaction != nil {
		r := rec.Reaction
		fmt.Fprintf(&sb, "**Equation:** %s <=> %s\n", formatSide(r.Reactants), formatSide(r.Products))
		if len(r.Operators) > 0 {
			fmt.Fprintf(&sb, "**Operators:** %s\n", strings.Join(r.Operators, ", "))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Role nodes\n")
	for _, n := range roles {
		fmt.Fprintf(&sb, "- node %d %s (%s): members %v\n", n.ID, n.Kind, n.Kind.Description(), n.Members)
	}
	return sb.String(), nil
}

// reactionNodes returns the role nodes of a reaction in creation order.
func reactionNodes(ctx context.Context, store Store, id string) ([]*graph.Node, error) {
	var out []*graph.Node
	for _, kind := range graph.ReactionKinds {
		nodes, err := store.NodesByKind(ctx, kind)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			if n.MineID == id {
				out = append(out, n)
			}
		}
	}
	return out, nil
}

func formatSide(ps []mine.Participant) string {
	parts := make([]string, 0, len(ps))
	for _, p := range ps {
		if p.Coefficient == 1 {
			parts = append(parts, p.ID)
			continue
		}
		parts = append(parts, fmt.Sprintf("%d %s", p.Coefficient, p.ID))
	}
	return strings.Join(parts, " + ")
}

func handleNeighbors(ctx context.Context, store Store, id int, direction string) (string, error) {
	if id <= 0 {
		return "No node id provided", nil
	}
	dir, err := storage.ParseDirection(direction)
	if err != nil {
		return "", err
	}
	node, err := store.GetNode(ctx, id)
	if err != nil {
		return "", err
	}
	if node == nil {
		return fmt.Sprintf("Node %d not found in the network", id), nil
	}
	neighbors, err := store.Neighbors(ctx, id, dir)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Neighbors of node %d (%s %s), direction %s:\n\n", node.ID, node.Kind, node.MineID, dir)
	if len(neighbors) == 0 {
		sb.WriteString("None.\n")
		return sb.String(), nil
	}
	for _, n := range neighbors {
		fmt.Fprintf(&sb, "- node %d %s %s\n", n.ID, n.Kind, n.MineID)
	}
	return sb.String(), nil
}

func handleStartNodes(ctx context.Context, store Store, limit int) (string, error) {
	compounds, err := store.NodesByKind(ctx, graph.KindCompound)
	if err != nil {
		return "", err
	}
	var starts []*graph.Node
	for _, n := range compounds {
		if n.Start {
			starts = append(starts, n)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Start compounds (%d)\n\n", len(starts))
	for i, n := range starts {
		if i == limit {
			fmt.Fprintf(&sb, "... and %d more\n", len(starts)-limit)
			break
		}
		fmt.Fprintf(&sb, "- node %d %s\n", n.ID, n.MineID)
	}
	return sb.String(), nil
}

func handleSearch(ctx context.Context, store Store, query string, limit int) (string, error) {
	if query == "" {
		return "No query provided", nil
	}
	results, err := store.SearchCompounds(ctx, query, limit)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No results found", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d compounds for '%s':\n\n", len(results), query)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. **%s** (node %d)\n", i+1, r.MineID, r.NodeID)
		if len(r.Names) > 0 {
			fmt.Fprintf(&sb, "   Names: %s\n", strings.Join(r.Names, "; "))
		}
		if r.Formula != "" {
			fmt.Fprintf(&sb, "   Formula: %s\n", r.Formula)
		}
		fmt.Fprintf(&sb, "   Score: %.1f\n", r.Score)
	}
	sb.WriteString("\nNext: Use `minet_compound` on a compound for its reactions.")
	return sb.String(), nil
}

// Resource Handlers

func getOverview(ctx context.Context, store Store) (string, error) {
	var sb strings.Builder
	sb.WriteString("# minet Network Overview\n\n")

	meta, err := store.Meta(ctx)
	if errors.Is(err, storage.ErrNoNetwork) {
		sb.WriteString("No network stored yet. Run `minet build SEEDS` first.\n")
		return sb.String(), nil
	}
	if err != nil {
		return "", err
	}

	fmt.Fprintf(&sb, "**Run:** %s (%s)\n", meta.ID, meta.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&sb, "**Seeds:** %d\n", len(meta.Seeds))
	fmt.Fprintf(&sb, "**Expansion steps:** %d (compound limit %d, carbon limit %d)\n",
		meta.Steps, meta.CompoundLimit, meta.CarbonLimit)
	fmt.Fprintf(&sb, "**KEGG merged:** %t\n", meta.KEGGMerged)
	fmt.Fprintf(&sb, "**Nodes:** %d\n", store.NodeCount())
	fmt.Fprintf(&sb, "**Edges:** %d\n", store.EdgeCount())

	if len(meta.Stats) > 0 {
		sb.WriteString("\n## Nodes by kind\n\n")
		for _, kind := range append([]graph.NodeKind{graph.KindCompound}, graph.ReactionKinds...) {
			fmt.Fprintf(&sb, "- %s: %d\n", kind.Description(), meta.Stats[kind.Description()])
		}
	}
	return sb.String(), nil
}

func getSchema() string {
	var sb strings.Builder
	sb.WriteString("# minet Network Schema\n\n")
	sb.WriteString("## Node kinds\n\n")
	sb.WriteString("| Kind | Description | Key Properties |\n")
	sb.WriteString("|------|-------------|----------------|\n")
	sb.WriteString("| `c` | Compound | mid, start |\n")
	sb.WriteString("| `rf` | Reactants of the forward reaction | mid, members |\n")
	sb.WriteString("| `pf` | Products of the forward reaction | mid, members |\n")
	sb.WriteString("| `rr` | Reactants of the reverse reaction | mid, members |\n")
	sb.WriteString("| `pr` | Products of the reverse reaction | mid, members |\n")
	sb.WriteString("\n## Edge rules\n\n")
	sb.WriteString("| Source → Target | When |\n")
	sb.WriteString("|-----------------|------|\n")
	sb.WriteString("| `rf` → `pf`, `rr` → `pr` | Always, inside one reaction |\n")
	sb.WriteString("| compound → `rf` | Reactant whose Reactant_in lists the reaction |\n")
	sb.WriteString("| `pf` → compound | Product whose Product_of lists the reaction |\n")
	sb.WriteString("| compound → `rr` | Product whose Product_of lists the reaction |\n")
	sb.WriteString("| `pr` → compound | Reactant whose Reactant_in lists the reaction |\n")
	sb.WriteString("\nNode ids are consecutive from 1. The four role nodes of a reaction have consecutive ids.\n")
	return sb.String()
}

// registerTools registers every tool of ListTools with the MCP server.
func (s *Server) registerTools() {
	for _, tool := range s.ListTools() {
		name := tool.Name
		s.server.AddTool(&mcp.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := map[string]any{}
			if len(req.Params.Arguments) > 0 {
				if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
					return toolError(fmt.Errorf("decoding arguments: %w", err)), nil
				}
			}
			text, err := s.CallTool(ctx, name, args)
			if err != nil {
				s.log.Warn("tool call failed", zap.String("tool", name), zap.Error(err))
				return toolError(err), nil
			}
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, nil
		})
	}
}

func toolError(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

// registerResources registers every resource of ListResources with the MCP
// server.
func (s *Server) registerResources() {
	for _, res := range s.ListResources() {
		uri, mimeType := res.URI, res.MimeType
		s.server.AddResource(&mcp.Resource{
			URI:         res.URI,
			Name:        res.Name,
			Description: res.Description,
			MIMEType:    res.MimeType,
		}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			text, err := s.ReadResource(ctx, uri)
			if err != nil {
				return nil, err
			}
			return &mcp.ReadResourceResult{
				Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: mimeType, Text: text}},
			}, nil
		})
	}
}
