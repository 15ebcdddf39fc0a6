// Package mcp implements the Model Context Protocol (MCP) server for tutormatch.
//
// The server exposes the matching operations as tools:
//   - compute_matches: rank tutors for a student, optionally storing a run
//   - get_matches: read the student's latest stored run
//   - select_match: append a chosen tutor to the latest run and notify them
//   - refresh_embeddings: recompute one profile's embeddings
//   - backfill_embeddings: recompute embeddings for every profile
//   - get_status: counts and database details
//
// MCP is JSON-RPC 2.0 over stdio. Stdout belongs to the protocol, so all
// logging goes to stderr.
//
//	tutormatch serve
//
// # Errors
//
// Tool failures are returned as *MCPError with a JSON-RPC style code:
//
//	-32602  invalid parameters (bad id, role, weights)
//	-32603  internal error
//	-32001  student, tutor or user not found
//	-32002  a backfill is already running
//	-32003  tutor is not among the student's current matches
//	-32004  user lacks the student or tutor role
//	-32005  write conflicted with existing data
package mcp
