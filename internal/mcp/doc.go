// Package mcp exposes the proposal workflow to MCP clients.
//
// The server uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// and calls the orchestrator directly. Tools cover the operator surface:
// starting sessions, polling status, the clarification loop, cancellation,
// artifact retrieval and the shared knowledge base. Every tool is listed in
// a ToolRegistry so clients can discover tools with tool_search.
package mcp
