package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func idProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": description,
		"minimum":     1,
	}
}

// computeMatchesTool returns the tool definition for compute_matches
func computeMatchesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "compute_matches",
		Description: "Rank tutors for a student by embedding similarity, class history, availability and location",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"student_id": idProperty("User id of the student to match"),
				"persist": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, store the ranking as the student's latest match run",
					"default":     true,
				},
			},
			Required: []string{"student_id"},
		},
	}
}

// getMatchesTool returns the tool definition for get_matches
func getMatchesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_matches",
		Description: "Return the rows of a student's most recent match run",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"student_id": idProperty("User id of the student"),
			},
			Required: []string{"student_id"},
		},
	}
}

// selectMatchTool returns the tool definition for select_match
func selectMatchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "select_match",
		Description: "Record that a student picked one of their current tutor matches and notify the tutor",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"student_id": idProperty("User id of the student"),
				"tutor_id":   idProperty("User id of the selected tutor"),
			},
			Required: []string{"student_id", "tutor_id"},
		},
	}
}

// refreshEmbeddingsTool returns the tool definition for refresh_embeddings
func refreshEmbeddingsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "refresh_embeddings",
		Description: "Recompute the bio, help and location embeddings of one profile",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": idProperty("User id owning the profile"),
				"role": map[string]interface{}{
					"type":        "string",
					"description": "Which profile of the user to refresh",
					"enum":        []string{"student", "tutor"},
				},
			},
			Required: []string{"user_id", "role"},
		},
	}
}

// backfillEmbeddingsTool returns the tool definition for backfill_embeddings
func backfillEmbeddingsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "backfill_embeddings",
		Description: "Recompute embeddings for every profile under the current model",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"only_missing": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, skip profiles that already have all three embeddings",
					"default":     false,
				},
				"roles": map[string]interface{}{
					"type":        "array",
					"description": "Profile roles to refresh (default: both)",
					"items": map[string]interface{}{
						"type": "string",
						"enum": []string{"student", "tutor"},
					},
				},
				"workers": map[string]interface{}{
					"type":        "integer",
					"description": "Concurrent embedding calls (1-64)",
					"minimum":     1,
					"maximum":     64,
				},
			},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report profile, embedding and match counts plus database details",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
