// Package mcp implements MCP (Model Context Protocol) client support:
// connecting to external MCP servers, aggregating their tools, resources,
// and prompts under one interface, and routing calls to the right backend.
//
// MCP uses JSON-RPC 2.0. Three transports are supported: stdio (subprocess
// with newline-delimited messages), streamable HTTP, and websocket. Each
// Transport owns one connection; the Client owns zero or more Transports
// plus a built-in tool registry and presents the merged catalog to the
// host application. Server-sourced tools are stored under qualified
// "{server}/{tool}" names; built-in tools keep their bare names and take
// precedence during resolution.
//
// This implementation covers the client/host side only — Toolhost does
// not act as an MCP server.
package mcp
