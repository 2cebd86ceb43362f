// Package server implements the MCP (Model Context Protocol) server for
// receipt extraction tools.
//
// This package provides a JSON-RPC 2.0 server that exposes the extraction
// pipeline and its individual stages through the MCP protocol, so that an AI
// client can extract a receipt, inspect what the detector found, and re-read
// a single region when a field looks wrong.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
//   - receipt_extract: Full pipeline, returns date, amount, category and a trace
//   - receipt_detect_regions: Detected regions, optionally drawn over the image
//   - receipt_ocr_region: Text and word boxes of one rectangle
//   - receipt_parse_text: Date and total search over free text
//   - receipt_forget: Drop one image from the cache
//   - receipt_status: Loaded components and OCR engine details
//
// # Image Caching
//
// Receipt images are cached by path and reused across tool calls. The cache
// holds imaging.DefaultCacheSize images and drops the oldest when full;
// receipt_forget evicts one explicitly.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: The Go error string
package server
