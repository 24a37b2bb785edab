// Package mcp exposes context retrieval as a Model Context Protocol tool.
//
// The server registers a single tool, get_context, and serves it over the
// stdio transport from github.com/modelcontextprotocol/go-sdk/mcp.
package mcp
