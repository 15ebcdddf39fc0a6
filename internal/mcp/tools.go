package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/tutormatch/internal/logger"
	"github.com/dshills/tutormatch/internal/notify"
	"github.com/dshills/tutormatch/internal/refresher"
	"github.com/dshills/tutormatch/internal/storage"
	"github.com/dshills/tutormatch/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams     = -32602 // Invalid method parameters
	ErrorCodeInternalError     = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound          = -32001 // Student, tutor or user does not exist
	ErrorCodeRefreshInProgress = -32002 // Another backfill is already running
	ErrorCodeNotCandidate      = -32003 // Tutor is not among the student's current matches
	ErrorCodeWrongRole         = -32004 // User lacks the student or tutor role
	ErrorCodeConflict          = -32005 // Write collided with existing data
)

const (
	maxBackfillWorkers = 64
	maxToolErrors      = 5
)

// handleComputeMatches handles the compute_matches tool invocation
func (s *Server) handleComputeMatches(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, log, err := s.begin(request)
	if err != nil {
		return nil, err
	}

	studentID, err := requireID(args, "student_id")
	if err != nil {
		return nil, err
	}
	persist := getBoolDefault(args, "persist", true)

	start := time.Now()
	response := map[string]interface{}{
		"student_id": studentID,
		"model":      s.service.Model(),
		"persisted":  persist,
	}

	if persist {
		res, err := s.service.RefreshMatches(ctx, studentID)
		if err != nil {
			return nil, s.toolError(log, "compute matches failed", err)
		}
		response["run"] = runJSON(res.Run)
		response["matches"] = matchesJSON(res.Matches)
	} else {
		ranked, err := s.service.ComputeRankedMatches(ctx, studentID)
		if err != nil {
			return nil, s.toolError(log, "compute matches failed", err)
		}
		response["matches"] = rankedJSON(ranked)
	}
	response["duration_ms"] = time.Since(start).Milliseconds()

	log.Info("computed matches", "student_id", studentID, "persist", persist)
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetMatches handles the get_matches tool invocation
func (s *Server) handleGetMatches(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, log, err := s.begin(request)
	if err != nil {
		return nil, err
	}

	studentID, err := requireID(args, "student_id")
	if err != nil {
		return nil, err
	}

	res, err := s.service.GetLatestMatches(ctx, studentID)
	if err != nil {
		return nil, s.toolError(log, "get matches failed", err)
	}

	response := map[string]interface{}{
		"student_id": studentID,
		"matches":    matchesJSON(res.Matches),
	}
	if res.Run != nil {
		response["run"] = runJSON(res.Run)
	} else {
		response["message"] = "No match runs yet. Use compute_matches or select_match first."
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSelectMatch handles the select_match tool invocation
func (s *Server) handleSelectMatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, log, err := s.begin(request)
	if err != nil {
		return nil, err
	}

	studentID, err := requireID(args, "student_id")
	if err != nil {
		return nil, err
	}
	tutorID, err := requireID(args, "tutor_id")
	if err != nil {
		return nil, err
	}

	res, err := s.service.SelectMatch(ctx, studentID, tutorID)
	if err != nil {
		return nil, s.toolError(log, "select match failed", err)
	}

	notified := false
	if res.Created {
		notified = s.notifyNewMatch(ctx, log, studentID, tutorID)
	}

	response := map[string]interface{}{
		"created":            res.Created,
		"previously_matched": res.PreviouslyMatched,
		"notified":           notified,
		"match":              matchJSON(res.Match),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// notifyNewMatch tells the tutor about the selection. Failures are logged
// and do not undo the match.
func (s *Server) notifyNewMatch(ctx context.Context, log *logger.Logger, studentID, tutorID int64) bool {
	var firstName string
	if user, err := s.storage.GetUser(ctx, studentID); err == nil {
		firstName = user.FirstName
	}
	if err := s.notifier.Notify(ctx, notify.NewMatch(tutorID, studentID, firstName)); err != nil {
		log.Warn("failed to send match notification", "tutor_id", tutorID, "error", err)
		return false
	}
	return true
}

// handleRefreshEmbeddings handles the refresh_embeddings tool invocation
func (s *Server) handleRefreshEmbeddings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, log, err := s.begin(request)
	if err != nil {
		return nil, err
	}

	userID, err := requireID(args, "user_id")
	if err != nil {
		return nil, err
	}
	role := types.Role(getStringDefault(args, "role", ""))
	if err := role.Validate(); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid role", map[string]interface{}{
			"param":   "role",
			"value":   string(role),
			"allowed": []string{string(types.RoleStudent), string(types.RoleTutor)},
		})
	}

	if role == types.RoleStudent {
		err = s.service.RefreshStudentEmbeddings(ctx, userID)
	} else {
		err = s.service.RefreshTutorEmbeddings(ctx, userID)
	}
	if err != nil {
		return nil, s.toolError(log, "refresh embeddings failed", err)
	}

	response := map[string]interface{}{
		"refreshed": true,
		"user_id":   userID,
		"role":      role,
		"model":     s.service.Model(),
		"fields":    types.AllFields,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleBackfillEmbeddings handles the backfill_embeddings tool invocation
func (s *Server) handleBackfillEmbeddings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, log, err := s.begin(request)
	if err != nil {
		return nil, err
	}

	config := &refresher.Config{
		OnlyMissing: getBoolDefault(args, "only_missing", false),
		Workers:     getIntDefault(args, "workers", 0),
	}
	if config.Workers < 0 || config.Workers > maxBackfillWorkers {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("workers must be between 1 and %d", maxBackfillWorkers), map[string]interface{}{
			"param": "workers",
			"value": config.Workers,
		})
	}
	if raw, ok := args["roles"].([]interface{}); ok {
		for _, r := range raw {
			name, _ := r.(string)
			role := types.Role(name)
			if err := role.Validate(); err != nil {
				return nil, newMCPError(ErrorCodeInvalidParams, "invalid role", map[string]interface{}{
					"param": "roles",
					"value": r,
				})
			}
			config.Roles = append(config.Roles, role)
		}
	}

	stats, err := s.refresher.RefreshAll(ctx, config)
	if err != nil {
		return nil, s.toolError(log, "backfill failed", err)
	}

	response := map[string]interface{}{
		"model":              stats.Model,
		"students_refreshed": stats.StudentsRefreshed,
		"tutors_refreshed":   stats.TutorsRefreshed,
		"profiles_skipped":   stats.ProfilesSkipped,
		"profiles_failed":    stats.ProfilesFailed,
		"slots_written":      stats.SlotsWritten,
		"duration_ms":        stats.Duration.Milliseconds(),
	}
	if n := len(stats.ErrorMessages); n > 0 {
		// Include first few errors
		if n > maxToolErrors {
			response["errors"] = stats.ErrorMessages[:maxToolErrors]
			response["error_count"] = n
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, log, err := s.begin(request)
	if err != nil {
		return nil, err
	}

	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, s.toolError(log, "failed to get status", err)
	}

	response := map[string]interface{}{
		"statistics": map[string]interface{}{
			"users_count":      status.UsersCount,
			"students_count":   status.StudentsCount,
			"tutors_count":     status.TutorsCount,
			"classes_count":    status.ClassesCount,
			"embeddings_count": status.EmbeddingsCount,
			"runs_count":       status.RunsCount,
			"matches_count":    status.MatchesCount,
		},
		"database": map[string]interface{}{
			"schema_version": status.SchemaVersion,
			"driver":         status.DriverName,
			"build_mode":     status.BuildMode,
			"size_mb":        fmt.Sprintf("%.2f", status.DatabaseSizeMB),
		},
		"embedding": map[string]interface{}{
			"model":            s.service.Model(),
			"backfill_running": s.refresher.Running(),
			"retrieve_top_k":   s.service.Options().RetrieveTopK,
			"rerank_top_k":     s.service.Options().RerankTopK,
			"rerank_weights":   s.service.Options().RerankWeights,
			"field_weights":    s.service.Options().FieldWeights,
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// begin extracts the arguments and tags the request with a correlation id
func (s *Server) begin(request mcp.CallToolRequest) (map[string]interface{}, *logger.Logger, error) {
	log := s.log.With("tool", request.Params.Name, "request_id", uuid.NewString())
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, log, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, log, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, log, nil
}

// toolError logs err and converts it to an MCPError
func (s *Server) toolError(log *logger.Logger, message string, err error) error {
	code := errorCode(err)
	if code == ErrorCodeInternalError {
		log.Error(message, "error", err)
	} else {
		log.Debug(message, "error", err)
	}
	return newMCPError(code, message, map[string]interface{}{
		"error": err.Error(),
	})
}

// errorCode maps domain and storage errors to MCP error codes
func errorCode(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidUserID),
		errors.Is(err, types.ErrInvalidTopK),
		errors.Is(err, types.ErrInvalidWeights),
		errors.Is(err, types.ErrInvalidRole),
		errors.Is(err, storage.ErrInvalidRow):
		return ErrorCodeInvalidParams
	case errors.Is(err, types.ErrStudentNotFound),
		errors.Is(err, types.ErrTutorNotFound),
		errors.Is(err, storage.ErrNotFound):
		return ErrorCodeNotFound
	case errors.Is(err, types.ErrNotStudent), errors.Is(err, types.ErrNotTutor):
		return ErrorCodeWrongRole
	case errors.Is(err, types.ErrTutorNotInCandidates):
		return ErrorCodeNotCandidate
	case errors.Is(err, refresher.ErrRefreshInProgress):
		return ErrorCodeRefreshInProgress
	case errors.Is(err, storage.ErrConflict):
		return ErrorCodeConflict
	default:
		return ErrorCodeInternalError
	}
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// requireID extracts a positive integer id parameter
func requireID(args map[string]interface{}, key string) (int64, error) {
	var id int64
	switch v := args[key].(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, invalidID(key, v)
		}
		id = int64(v)
	case int:
		id = int64(v)
	case int64:
		id = v
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, invalidID(key, v)
		}
		id = n
	case nil:
		return 0, newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing",
		})
	default:
		return 0, invalidID(key, v)
	}
	if id <= 0 {
		return 0, invalidID(key, id)
	}
	return id, nil
}

func invalidID(key string, value interface{}) error {
	return newMCPError(ErrorCodeInvalidParams, key+" must be a positive integer", map[string]interface{}{
		"param": key,
		"value": value,
	})
}

func runJSON(run *storage.MatchRun) map[string]interface{} {
	return map[string]interface{}{
		"id":         run.ID,
		"model":      run.ModelName,
		"top_k":      run.TopK,
		"weights":    run.Weights,
		"created_at": run.CreatedAt.Format(time.RFC3339),
	}
}

func matchJSON(m *storage.Match) map[string]interface{} {
	return map[string]interface{}{
		"rank":                 m.Rank,
		"tutor_id":             m.TutorID,
		"run_id":               m.RunID,
		"similarity_score":     m.SimilarityScore,
		"embedding_similarity": m.EmbeddingSimilarity,
		"class_strength":       m.ClassStrength,
		"availability_overlap": m.AvailabilityOverlap,
		"location_match":       m.LocationMatch,
		"selected":             m.Selected(),
	}
}

func matchesJSON(matches []*storage.Match) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(matches))
	for _, m := range matches {
		out = append(out, matchJSON(m))
	}
	return out
}

func rankedJSON(rows []types.RankedMatch) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(rows))
	for i, r := range rows {
		out = append(out, map[string]interface{}{
			"rank":                 i + 1,
			"tutor_id":             r.TutorID,
			"similarity_score":     r.FinalScore,
			"embedding_similarity": r.EmbeddingSimilarity,
			"class_strength":       r.ClassStrength,
			"availability_overlap": r.AvailabilityOverlap,
			"location_match":       r.LocationMatch,
		})
	}
	return out
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
