// Package mcp provides shared types for the JSON-RPC exchange driven by the
// smoke-test harness. The harness treats the MCP protocol as an opaque
// request/response exchange; only the envelope shapes are modeled here.
package mcp

import "encoding/json"

// ProtocolVersion is the MCP protocol version the harness advertises during
// the initialize exchange. The legacy /sse + /message endpoint pair the
// harness drives belongs to this version.
const ProtocolVersion = "2024-11-05"

// Client identity sent in the initialize request.
const (
	ClientName    = "mcpsmoke"
	ClientVersion = "0.1.0"
)

// Methods issued by the harness, in fixed order.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodListTools   = "tools/list"
	MethodCallTool    = "tools/call"
)

// Request is a JSON-RPC 2.0 request envelope. A zero ID marks a notification;
// the omitempty tags keep both the id and params fields off the wire entirely
// in that case (params is never sent as null).
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id,omitempty"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// NewRequest creates a request expecting a correlated response on the stream.
func NewRequest(id int64, method string, params interface{}) Request {
	return Request{JSONRPC: "2.0", ID: id, Method: method, Params: params}
}

// NewNotification creates a one-way request. No id is assigned, so the server
// sends no response for it.
func NewNotification(method string, params interface{}) Request {
	return Request{JSONRPC: "2.0", Method: method, Params: params}
}

// Response is a JSON-RPC 2.0 response envelope as delivered on the SSE
// stream. Exactly one of Result or Error is populated.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// IsError reports whether the response carries the error marker.
func (r Response) IsError() bool {
	return r.Error != nil
}

// IsSuccess reports whether the response carries the success marker.
func (r Response) IsSuccess() bool {
	return r.Error == nil && len(r.Result) > 0
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error returns the error message, implementing the error interface.
func (e *RPCError) Error() string {
	return e.Message
}

// ClientInfo identifies the client in the initialize request.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams are the parameters for the initialize request: protocol
// version, empty capabilities, and the client identity.
type InitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ClientInfo      ClientInfo             `json:"clientInfo"`
}

// NewInitializeParams builds the initialize parameters the harness sends.
func NewInitializeParams() InitializeParams {
	return InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]interface{}{},
		ClientInfo:      ClientInfo{Name: ClientName, Version: ClientVersion},
	}
}

// CallToolParams are the parameters for a tools/call request.
type CallToolParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// Tool is one entry in a tools/list result.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty"`
}

// ListToolsResult is the result payload of a tools/list response.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}
