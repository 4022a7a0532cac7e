// Package mcp exposes the clinical and literature pipelines as MCP tools.
//
// The server uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// over the stdio transport. Tool failures are reported as tool errors whose
// text starts with the failure class, for example "not_found: ...".
package mcp
