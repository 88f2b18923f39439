package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/busjam/game/engine"
	"github.com/wricardo/mcp-training/busjam/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
	logger     zerolog.Logger
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string, logger zerolog.Logger) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With().Str("component", "mcp").Logger(),
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Bus Jam",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Bus Jam - MCP Interface

This is a thin client that proxies all requests to the REST API server.

GAME OBJECTIVE:
Board every passenger. Passengers stand on a grid; row 0 touches the bus stop.
Tap a passenger with a clear path to row 0 and they walk to the stop. If their
color matches the bus at the stop they board, otherwise they wait in the
waiting area. Fill the waiting area and the level is lost.

AVAILABLE TOOLS:
- create_session / list_sessions / get_session: manage sessions
- start_game: leave the start screen; taps are ignored before this
- game_state: board, buses, waiting area and tappable cells
- tap: tap one cell - requires intent explanation
- bulk_tap: tap several cells in order - requires intent explanation
- tick: advance the level clock
- reset_game: restart the level
- tap_history: view past taps
- list_levels / get_progress: levels and unlocks
- game_instructions: full rules
- describe_cell: details about one grid cell

NOTE: The 'intent' parameter on tap/bulk_tap serves as rubber duck debugging - explain your reasoning!`),
	)

	c.registerTools()
}

func sessionProperty() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "Session ID",
	}
}

func coordinateProperties() (map[string]any, map[string]any) {
	return map[string]any{
			"type":        "integer",
			"description": "X coordinate (column, 0-based)",
		}, map[string]any{
			"type":        "integer",
			"description": "Y coordinate (row, 0-based; row 0 is next to the bus stop)",
		}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	x, y := coordinateProperties()

	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new game session for a level",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"level_id": map[string]any{
					"type":        "string",
					"description": "Level to play, e.g. level_1 (optional, defaults to the first level)",
				},
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all active game sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of a specific session",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleGetSession)

	// Game operations
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_state",
		Description: "Get the current game state",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleGameState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "start_game",
		Description: "Start the level. Taps are ignored until the game is started",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleStartGame)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "tap",
		Description: "Tap a passenger on the grid",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionProperty(),
				"x":          x,
				"y":          y,
				"intent": map[string]any{
					"type":        "string",
					"description": "Brief explanation of the intent behind this tap (serves as a rubber duck to help explain your reasoning)",
				},
			},
			Required: []string{"session_id", "x", "y"},
		},
	}, c.handleTap)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "bulk_tap",
		Description: fmt.Sprintf("Tap several cells in order. Stops early when the level ends. At most %d taps", engine.MaxBulkTaps),
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionProperty(),
				"taps": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"x": x,
							"y": y,
						},
						"required": []string{"x", "y"},
					},
					"description": "Cells to tap, in order",
				},
				"intent": map[string]any{
					"type":        "string",
					"description": "Brief explanation of the intent behind this sequence of taps (serves as a rubber duck to help explain your reasoning)",
				},
			},
			Required: []string{"session_id", "taps"},
		},
	}, c.handleBulkTap)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "tick",
		Description: "Advance the level clock by whole seconds",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionProperty(),
				"seconds": map[string]any{
					"type":        "integer",
					"description": "Seconds to advance (default 1)",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleTick)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "reset_game",
		Description: "Reset the level to its initial state",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleReset)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "tap_history",
		Description: "Get tap history for a session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionProperty(),
				"page": map[string]any{
					"type":        "integer",
					"description": "Page number",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Items per page",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleTapHistory)

	// Levels and progression
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_levels",
		Description: "List available levels and whether they are unlocked",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, c.handleListLevels)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_progress",
		Description: "Show the highest unlocked level and recent results",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, c.handleGetProgress)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_instructions",
		Description: "Get comprehensive game instructions and rules",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, c.handleGameInstructions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "describe_cell",
		Description: "Get detailed information about one grid cell: its color, its passenger and whether it can be tapped right now",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionProperty(),
				"x":          x,
				"y":          y,
			},
			Required: []string{"session_id", "x", "y"},
		},
	}, c.handleDescribeCell)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// ServeHTTP answers one JSON-RPC message per POST.
func (c *Client) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	response := c.mcpServer.HandleMessage(r.Context(), body)
	if response == nil {
		// notifications have no response
		w.WriteHeader(http.StatusAccepted)
		return
	}

	responseData, err := json.Marshal(response)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(responseData)
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("method", method).Str("path", path).Msg("api call failed")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func arguments(request mcp.CallToolRequest) map[string]any {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return map[string]any{}
	}
	return args
}

func sessionPath(args map[string]any, suffix string) (string, error) {
	sessionID, _ := args["session_id"].(string)
	if sessionID == "" {
		return "", fmt.Errorf("session_id is required")
	}
	return "/api/sessions/" + url.PathEscape(sessionID) + suffix, nil
}

// intArg reads a JSON number argument.
func intArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}

func positionArg(args map[string]any) (engine.Position, error) {
	x, okX := intArg(args, "x")
	y, okY := intArg(args, "y")
	if !okX || !okY {
		return engine.Position{}, fmt.Errorf("x and y are required integers")
	}
	return engine.Position{X: x, Y: y}, nil
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	levelID, _ := arguments(request)["level_id"].(string)

	body := map[string]string{}
	if levelID != "" {
		body["level_id"] = levelID
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created session: %s\nLevel: %s\n\n%s", session.ID, session.LevelID, formatGameState(session.GameState))
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                   `json:"count"`
		Sessions []service.SessionInfo `json:"sessions"`
	}

	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		phase := "unknown"
		if s.GameState != nil {
			phase = s.GameState.Phase.String()
		}
		fmt.Fprintf(&b, "- %s (Level: %s, Phase: %s, Created: %s)\n",
			s.ID, s.LevelID, phase, s.CreatedAt.Format("15:04:05"))
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "GET", path, nil, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

func (c *Client) handleGameState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "/state")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var state engine.GameState
	if err := c.apiCall(ctx, "GET", path, nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatGameState(&state)), nil
}

func (c *Client) handleStartGame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "/start")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var state engine.GameState
	if err := c.apiCall(ctx, "POST", path, nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText("Game started.\n\n" + formatGameState(&state)), nil
}

func (c *Client) handleTap(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, err := sessionPath(args, "/tap")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pos, err := positionArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// intent is for the caller's benefit only
	if intent, _ := args["intent"].(string); intent != "" {
		c.logger.Debug().Str("intent", intent).Stringer("pos", pos).Msg("tap")
	}

	var result service.TapResult
	if err := c.apiCall(ctx, "POST", path, pos, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatTapResult(&result)), nil
}

func (c *Client) handleBulkTap(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, err := sessionPath(args, "/bulk-tap")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, _ := args["taps"].([]any)
	taps := make([]engine.Position, 0, len(raw))
	for i, item := range raw {
		fields, ok := item.(map[string]any)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("taps[%d] must be an object with x and y", i)), nil
		}
		pos, err := positionArg(fields)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("taps[%d]: %v", i, err)), nil
		}
		taps = append(taps, pos)
	}
	if len(taps) == 0 {
		return mcp.NewToolResultError("taps must contain at least one cell"), nil
	}

	if intent, _ := args["intent"].(string); intent != "" {
		c.logger.Debug().Str("intent", intent).Int("taps", len(taps)).Msg("bulk tap")
	}

	var result service.BulkTapResult
	if err := c.apiCall(ctx, "POST", path, map[string]any{"taps": taps}, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatBulkTapResult(&result)), nil
}

func (c *Client) handleTick(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, err := sessionPath(args, "/tick")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	seconds, ok := intArg(args, "seconds")
	if !ok {
		seconds = 1
	}

	var result service.TickResult
	if err := c.apiCall(ctx, "POST", path, map[string]int{"seconds": seconds}, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Clock advanced %ds.\n", result.Seconds)
	writeEvents(&b, result.Events)
	b.WriteString("\n")
	b.WriteString(formatGameState(result.GameState))
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := sessionPath(arguments(request), "/reset")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var response struct {
		Message string            `json:"message"`
		State   *engine.GameState `json:"state"`
	}

	if err := c.apiCall(ctx, "POST", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("%s\n\n%s", response.Message, formatGameState(response.State))
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleTapHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, err := sessionPath(args, "/history")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	query := url.Values{}
	if page, ok := intArg(args, "page"); ok {
		query.Set("page", fmt.Sprint(page))
	}
	if limit, ok := intArg(args, "limit"); ok {
		query.Set("limit", fmt.Sprint(limit))
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var history service.HistoryResponse
	if err := c.apiCall(ctx, "GET", path, nil, &history); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatHistory(&history)), nil
}

func (c *Client) handleListLevels(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var levels []service.LevelInfo
	if err := c.apiCall(ctx, "GET", "/api/levels", nil, &levels); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString("Available Levels:\n\n")
	for _, level := range levels {
		lock := "unlocked"
		if !level.Unlocked {
			lock = "locked"
		}
		fmt.Fprintf(&b, "• %s (#%d, %s) %s\n  %s\n  Grid: %dx%d, Buses: %d, Waiting slots: %d, Time: %s\n\n",
			level.LevelID, level.Number, lock, level.Name, level.Description,
			level.Width, level.Height, level.Vehicles, level.WaitingCapacity, formatTimeLimit(level.TimeLimit))
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetProgress(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var progress service.ProgressInfo
	if err := c.apiCall(ctx, "GET", "/api/progress", nil, &progress); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Profile: %s\nHighest unlocked level: %d\n", progress.Profile, progress.MaxUnlockedLevel)
	if len(progress.Results) == 0 {
		b.WriteString("\nNo finished attempts yet.\n")
	} else {
		b.WriteString("\nRecent results:\n")
		for _, r := range progress.Results {
			fmt.Fprintf(&b, "- level %d: %s in %d taps, %ds (session %s)\n",
				r.LevelNumber, r.Outcome, r.Taps, r.ElapsedSeconds, r.SessionID)
		}
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGameInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instructions := fmt.Sprintf(`Bus Jam - Complete Instructions

GAME OBJECTIVE:
Board every passenger onto the buses before the waiting area overflows or the
clock runs out.

THE BOARD:
• The grid is printed row by row. Row 0 is the top row and touches the bus stop.
• Each letter is a passenger of that color (R=Red, B=Blue, G=Green, ...).
• '.' is an empty cell. '#' is a decorative blocker that never moves.
• Coordinates are (x, y): x is the column, y is the row, both 0-based.

TAPPING:
• start_game first. Taps before the start and after the end are ignored.
• A passenger can leave only if a path of empty cells (up/down/left/right)
  connects them to row 0. Passengers on row 0 can always leave.
• The game_state tool lists every tappable cell.

BOARDING:
• Buses arrive one at a time in a fixed order. Only the bus at the stop loads.
• A passenger whose color matches the bus at the stop boards it.
• Anyone else takes the leftmost free waiting slot.
• When a bus is full it leaves and the next bus arrives. Waiting passengers of
  the new bus's color board it immediately, leftmost first.

WINNING AND LOSING:
• Win: the last passenger boards.
• Lose: a passenger arrives while every waiting slot is taken.
• Lose: the clock reaches zero (levels with a time limit only).
• Lose: every bus has left while passengers remain.

TOOLS:
• bulk_tap runs up to %d taps and stops as soon as the level ends.
• tick advances the clock when the server clock is paused or for planning.
• describe_cell explains a single cell, including why it cannot be tapped.

STRATEGY TIPS:
1. Look at the bus queue before tapping: match passengers to the bus at the stop.
2. Keep waiting slots free; each wrong-color tap uses one.
3. Clearing front passengers opens paths for the ones behind them.`, engine.MaxBulkTaps)

	return mcp.NewToolResultText(instructions), nil
}

func (c *Client) handleDescribeCell(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path, err := sessionPath(args, "/state")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pos, err := positionArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var state engine.GameState
	if err := c.apiCall(ctx, "GET", path, nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(describeCell(&state, pos)), nil
}

// Formatting helpers

func formatTimeLimit(seconds int) string {
	if seconds <= 0 {
		return "none"
	}
	return fmt.Sprintf("%ds", seconds)
}

func formatSessionInfo(session *service.SessionInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\nLevel: %s (#%d)\nCreated: %s\nLast active: %s\n\n",
		session.ID, session.LevelID, session.LevelNumber,
		session.CreatedAt.Format(time.RFC3339), session.LastAccessedAt.Format(time.RFC3339))
	b.WriteString(formatGameState(session.GameState))
	return b.String()
}

func formatGameState(state *engine.GameState) string {
	if state == nil {
		return "State: unavailable\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Level %d: %s\n", state.LevelNumber, state.Level)
	fmt.Fprintf(&b, "Phase: %s", state.Phase)
	if state.Victory {
		b.WriteString(" (VICTORY)")
	} else if state.Phase == engine.PhaseGameOver {
		b.WriteString(" (GAME OVER)")
	}
	b.WriteString("\n")
	if state.TimeLimit > 0 {
		fmt.Fprintf(&b, "Time: %ds of %ds remaining\n", state.TimeRemaining, state.TimeLimit)
	}
	fmt.Fprintf(&b, "Passengers left: %d", state.CharactersLeft)
	if len(state.RemainingByColor) > 0 {
		colors := make([]string, 0, len(state.RemainingByColor))
		for color, n := range state.RemainingByColor {
			colors = append(colors, fmt.Sprintf("%s=%d", color, n))
		}
		sort.Strings(colors)
		fmt.Fprintf(&b, " (%s)", strings.Join(colors, ", "))
	}
	fmt.Fprintf(&b, "\nTaps: %d\n", state.TotalTaps)
	if state.Message != "" {
		fmt.Fprintf(&b, "Message: %s\n", state.Message)
	}

	b.WriteString("\nBus stop:\n")
	b.WriteString(formatVehicles(state))
	b.WriteString("\nWaiting area: ")
	b.WriteString(formatWaiting(state))
	b.WriteString("\n\nBoard (row 0 is next to the stop):\n")
	b.WriteString(formatBoard(state))

	if len(state.Tappable) > 0 {
		cells := make([]string, 0, len(state.Tappable))
		for _, p := range state.Tappable {
			cells = append(cells, p.String())
		}
		fmt.Fprintf(&b, "\nTappable: %s\n", strings.Join(cells, " "))
	} else if state.Phase == engine.PhaseStart {
		b.WriteString("\nCall start_game to begin.\n")
	}

	return b.String()
}

func formatVehicles(state *engine.GameState) string {
	if len(state.Vehicles) == 0 {
		return "  (no buses)\n"
	}
	var b strings.Builder
	for _, v := range state.Vehicles {
		marker := " "
		if v.Status == "active" {
			marker = ">"
		}
		fmt.Fprintf(&b, " %s #%d %-7s %d/%d %s\n", marker, v.Order, v.Color, v.SeatsFilled, v.Capacity, v.Status)
	}
	return b.String()
}

func formatWaiting(state *engine.GameState) string {
	if len(state.WaitingSlots) == 0 {
		return "(none)"
	}
	slots := make([]string, 0, len(state.WaitingSlots))
	for _, slot := range state.WaitingSlots {
		if slot.Color == engine.EmptyColor {
			slots = append(slots, "[ ]")
			continue
		}
		slots = append(slots, fmt.Sprintf("[%s]", slot.Color))
	}
	return strings.Join(slots, " ")
}

func formatBoard(state *engine.GameState) string {
	var b strings.Builder
	b.WriteString("    ")
	for x := 0; x < state.Width; x++ {
		fmt.Fprintf(&b, "%d", x%10)
	}
	b.WriteString("\n")
	for y, row := range state.Board {
		fmt.Fprintf(&b, "%3d %s\n", y, row)
	}
	return b.String()
}

func writeEvents(b *strings.Builder, events []engine.Event) {
	for _, ev := range events {
		fmt.Fprintf(b, "  • %s: %s\n", ev.Type, ev.Message)
	}
}

func formatTapResult(result *service.TapResult) string {
	var b strings.Builder
	tap := result.Tap
	if tap == nil {
		return result.Message
	}

	status := "✓"
	if !result.Success {
		status = "✗"
	}
	fmt.Fprintf(&b, "%s Tap %s: %s", status, tap.Position, tap.Outcome)
	if tap.Color != engine.EmptyColor {
		fmt.Fprintf(&b, " (%s)", tap.Color)
	}
	if tap.Reason != "" {
		fmt.Fprintf(&b, " - %s", tap.Reason)
	}
	b.WriteString("\n")
	if len(tap.Path) > 0 {
		steps := make([]string, 0, len(tap.Path))
		for _, p := range tap.Path {
			steps = append(steps, p.String())
		}
		fmt.Fprintf(&b, "Path: %s\n", strings.Join(steps, " → "))
	}
	writeEvents(&b, tap.Events)
	b.WriteString("\n")
	b.WriteString(formatGameState(result.GameState))
	return b.String()
}

func formatBulkTapResult(result *service.BulkTapResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bulk tap: %d of %d taps executed", result.TapsExecuted, result.RequestedTaps)
	if result.Truncated {
		fmt.Fprintf(&b, " (truncated to %d)", result.Limit)
	}
	b.WriteString("\n")
	if result.StoppedReason != "" {
		fmt.Fprintf(&b, "Stopped: %s", result.StoppedReason)
		if result.StoppedOnTap > 0 {
			fmt.Fprintf(&b, " on tap %d", result.StoppedOnTap)
		}
		b.WriteString("\n")
	}

	for i, tap := range result.Results {
		line := fmt.Sprintf("%d. %s %s", i+1, tap.Position, tap.Outcome)
		if tap.Color != engine.EmptyColor {
			line += fmt.Sprintf(" (%s)", tap.Color)
		}
		if tap.Reason != "" {
			line += " - " + tap.Reason
		}
		b.WriteString(line + "\n")
	}
	if result.Message != "" {
		fmt.Fprintf(&b, "\n%s\n", result.Message)
	}
	b.WriteString("\n")
	b.WriteString(formatGameState(result.GameState))
	return b.String()
}

func formatHistory(history *service.HistoryResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tap History (Page %d/%d) — Total: %d\n\n",
		history.Page, history.TotalPages, history.TotalTaps)

	for _, tap := range history.Taps {
		line := fmt.Sprintf("%d. %s %s", tap.Number, tap.Position, tap.Outcome)
		if tap.Color != engine.EmptyColor {
			line += fmt.Sprintf(" (%s)", tap.Color)
		}
		if tap.Reason != "" {
			line += " - " + tap.Reason
		}
		fmt.Fprintf(&b, "%s [phase: %s]\n", line, tap.Phase)
	}
	if len(history.Taps) == 0 {
		b.WriteString("(no taps)\n")
	}

	return b.String()
}

// describeCell explains one cell from a snapshot.
func describeCell(state *engine.GameState, pos engine.Position) string {
	if pos.X < 0 || pos.Y < 0 || pos.X >= state.Width || pos.Y >= state.Height {
		return fmt.Sprintf("Cell %s is outside the %dx%d grid.", pos, state.Width, state.Height)
	}

	var cell *engine.CellView
	for i := range state.Cells {
		if state.Cells[i].X == pos.X && state.Cells[i].Y == pos.Y {
			cell = &state.Cells[i]
			break
		}
	}
	if cell == nil {
		return fmt.Sprintf("Cell %s is not part of the snapshot.", pos)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Cell %s\nSymbol: %s\n", pos, cell.Symbol)
	if cell.Color == engine.EmptyColor {
		b.WriteString("Color: none (empty cell)\n")
	} else {
		fmt.Fprintf(&b, "Color: %s\n", cell.Color)
	}
	if pos.Y == engine.BoardingRow {
		b.WriteString("Row 0: next to the bus stop.\n")
	}

	if !cell.Occupied {
		b.WriteString("Passenger: none; the cell is free to walk through.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Passenger: #%d\n", cell.CharacterID)
	tappable := false
	for _, p := range state.Tappable {
		if p == pos {
			tappable = true
			break
		}
	}
	switch {
	case state.Phase != engine.PhasePlaying:
		fmt.Fprintf(&b, "Tappable: no, the game is %s.\n", state.Phase)
	case state.InputBlocked:
		b.WriteString("Tappable: no, input is blocked while a bus is arriving.\n")
	case tappable:
		b.WriteString("Tappable: yes, a clear path leads to the stop.\n")
		if active := state.ActiveVehicle; active != nil {
			if active.Color == cell.Color {
				fmt.Fprintf(&b, "The %s bus is at the stop; this passenger boards.\n", active.Color)
			} else {
				fmt.Fprintf(&b, "The bus at the stop is %s; this passenger goes to the waiting area.\n", active.Color)
			}
		}
	default:
		b.WriteString("Tappable: no, other passengers block every path to the stop.\n")
	}

	return b.String()
}
