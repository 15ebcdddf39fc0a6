package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dshills/tutormatch/internal/logger"
	"github.com/dshills/tutormatch/internal/matching"
	"github.com/dshills/tutormatch/internal/notify"
	"github.com/dshills/tutormatch/internal/refresher"
	"github.com/dshills/tutormatch/internal/storage"
	"github.com/dshills/tutormatch/pkg/types"
)

var errAlreadyMatched = errors.New("student already selected this tutor")

// Handler serves the JSON API over the matching service
type Handler struct {
	service   *matching.Service
	store     storage.Storage
	refresher *refresher.Refresher
	notifier  notify.Notifier
	log       *logger.Logger
}

func NewHandler(svc *matching.Service, ref *refresher.Refresher, notifier notify.Notifier, log *logger.Logger) *Handler {
	if notifier == nil {
		notifier = notify.NewLogNotifier(log)
	}
	return &Handler{
		service:   svc,
		store:     svc.Store(),
		refresher: ref,
		notifier:  notifier,
		log:       log.With("handler", "api"),
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// pathID parses the :id parameter as a positive user id
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		RespondError(c, http.StatusBadRequest, CodeInvalidRequest, types.ErrInvalidUserID)
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		RespondError(c, http.StatusBadRequest, CodeInvalidRequest, err)
		return false
	}
	return true
}

// Users and classes

type createUserRequest struct {
	Email     string `json:"email" binding:"required,email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsStudent bool   `json:"is_student"`
	IsTutor   bool   `json:"is_tutor"`
}

type userResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	IsStudent bool      `json:"is_student"`
	IsTutor   bool      `json:"is_tutor"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if !bindJSON(c, &req) {
		return
	}
	user := &storage.User{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		IsStudent: req.IsStudent,
		IsTutor:   req.IsTutor,
	}
	if err := h.store.CreateUser(c.Request.Context(), user); err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, userResponse{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		IsStudent: user.IsStudent,
		IsTutor:   user.IsTutor,
		CreatedAt: user.CreatedAt,
	})
}

type createClassRequest struct {
	Subject     string `json:"subject" binding:"required"`
	ClassNumber string `json:"class_number" binding:"required"`
	Professor   string `json:"professor"`
}

func (h *Handler) CreateClass(c *gin.Context) {
	var req createClassRequest
	if !bindJSON(c, &req) {
		return
	}
	class := &storage.Class{
		Subject:     req.Subject,
		ClassNumber: req.ClassNumber,
		Professor:   req.Professor,
	}
	if err := h.store.CreateClass(c.Request.Context(), class); err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":           class.ID,
		"subject":      class.Subject,
		"class_number": class.ClassNumber,
		"professor":    class.Professor,
	})
}

// Availability

type slotRequest struct {
	DayOfWeek int    `json:"day_of_week"`
	Start     string `json:"start" binding:"required"`
	End       string `json:"end" binding:"required"`
}

type availabilityRequest struct {
	Slots []slotRequest `json:"slots"`
}

func (h *Handler) SetAvailability(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req availabilityRequest
	if !bindJSON(c, &req) {
		return
	}

	slots := make([]types.AvailabilitySlot, 0, len(req.Slots))
	for _, s := range req.Slots {
		start, err := types.ParseClock(s.Start)
		if err != nil {
			RespondError(c, http.StatusBadRequest, CodeInvalidRequest, err)
			return
		}
		end, err := types.ParseClock(s.End)
		if err != nil {
			RespondError(c, http.StatusBadRequest, CodeInvalidRequest, err)
			return
		}
		slots = append(slots, types.AvailabilitySlot{DayOfWeek: s.DayOfWeek, StartMinute: start, EndMinute: end})
	}

	if err := h.service.SetAvailability(c.Request.Context(), id, slots); err != nil {
		h.respondErr(c, err)
		return
	}
	RespondOK(c, gin.H{"user_id": id, "slots": len(slots)})
}

// Profiles

type studentClassRequest struct {
	ClassID        int64  `json:"class_id" binding:"required"`
	HelpLevel      int    `json:"help_level"`
	EstimatedGrade string `json:"estimated_grade"`
}

type studentProfileRequest struct {
	Bio        string                `json:"bio"`
	HelpNeeded []string              `json:"help_needed"`
	Locations  []string              `json:"locations"`
	Major      string                `json:"major"`
	GradYear   int                   `json:"grad_year"`
	Classes    []studentClassRequest `json:"classes"`
}

func (h *Handler) SaveStudentProfile(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req studentProfileRequest
	if !bindJSON(c, &req) {
		return
	}

	p := &types.StudentFeatures{
		UserID:     id,
		Bio:        req.Bio,
		HelpNeeded: req.HelpNeeded,
		Locations:  req.Locations,
		Major:      req.Major,
		GradYear:   req.GradYear,
	}
	for _, cl := range req.Classes {
		p.Classes = append(p.Classes, types.StudentClass{
			ClassID:        cl.ClassID,
			HelpLevel:      cl.HelpLevel,
			EstimatedGrade: cl.EstimatedGrade,
		})
	}

	refreshed, err := h.service.SaveStudentProfile(c.Request.Context(), p)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	RespondOK(c, gin.H{"user_id": id, "role": types.RoleStudent, "embeddings_refreshed": refreshed})
}

type tutorClassRequest struct {
	ClassID       int64  `json:"class_id" binding:"required"`
	Semester      string `json:"semester"`
	YearTaken     int    `json:"year_taken"`
	GradeReceived string `json:"grade_received"`
	HasTAed       bool   `json:"has_taed"`
}

type tutorProfileRequest struct {
	Bio             string              `json:"bio"`
	HelpProvided    []string            `json:"help_provided"`
	Locations       []string            `json:"locations"`
	Major           string              `json:"major"`
	GradYear        int                 `json:"grad_year"`
	HourlyRateCents int                 `json:"hourly_rate_cents"`
	SessionMode     string              `json:"session_mode"`
	Classes         []tutorClassRequest `json:"classes"`
}

func (h *Handler) SaveTutorProfile(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req tutorProfileRequest
	if !bindJSON(c, &req) {
		return
	}

	p := &types.TutorFeatures{
		UserID:          id,
		Bio:             req.Bio,
		HelpProvided:    req.HelpProvided,
		Locations:       req.Locations,
		Major:           req.Major,
		GradYear:        req.GradYear,
		HourlyRateCents: req.HourlyRateCents,
		SessionMode:     req.SessionMode,
	}
	for _, cl := range req.Classes {
		p.Classes = append(p.Classes, types.TutorClass{
			ClassID:       cl.ClassID,
			Semester:      cl.Semester,
			YearTaken:     cl.YearTaken,
			GradeReceived: cl.GradeReceived,
			HasTAed:       cl.HasTAed,
		})
	}

	refreshed, err := h.service.SaveTutorProfile(c.Request.Context(), p)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	RespondOK(c, gin.H{"user_id": id, "role": types.RoleTutor, "embeddings_refreshed": refreshed})
}

// Matches

type matchResponse struct {
	Rank                int     `json:"rank"`
	TutorID             int64   `json:"tutor_id"`
	SimilarityScore     float64 `json:"similarity_score"`
	EmbeddingSimilarity float64 `json:"embedding_similarity"`
	ClassStrength       float64 `json:"class_strength"`
	AvailabilityOverlap float64 `json:"availability_overlap"`
	LocationMatch       float64 `json:"location_match"`
	Selected            bool    `json:"selected"`
}

type runResponse struct {
	RunID     int64           `json:"run_id,omitempty"`
	StudentID int64           `json:"student_id"`
	Model     string          `json:"model,omitempty"`
	CreatedAt *time.Time      `json:"created_at,omitempty"`
	Matches   []matchResponse `json:"matches"`
}

func toMatch(m *storage.Match) matchResponse {
	return matchResponse{
		Rank:                m.Rank,
		TutorID:             m.TutorID,
		SimilarityScore:     m.SimilarityScore,
		EmbeddingSimilarity: m.EmbeddingSimilarity,
		ClassStrength:       m.ClassStrength,
		AvailabilityOverlap: m.AvailabilityOverlap,
		LocationMatch:       m.LocationMatch,
		Selected:            m.Selected(),
	}
}

func toRun(studentID int64, res *matching.RunResult) runResponse {
	out := runResponse{StudentID: studentID, Matches: make([]matchResponse, 0, len(res.Matches))}
	if res.Run != nil {
		out.RunID = res.Run.ID
		out.Model = res.Run.ModelName
		created := res.Run.CreatedAt
		out.CreatedAt = &created
	}
	for _, m := range res.Matches {
		out.Matches = append(out.Matches, toMatch(m))
	}
	return out
}

func (h *Handler) RefreshMatches(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.service.RefreshMatches(c.Request.Context(), id)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	RespondOK(c, toRun(id, res))
}

func (h *Handler) GetMatches(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.service.GetLatestMatches(c.Request.Context(), id)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	RespondOK(c, toRun(id, res))
}

type selectRequest struct {
	TutorID int64 `json:"tutor_id" binding:"required,gt=0"`
}

func (h *Handler) SelectMatch(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req selectRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	res, err := h.service.SelectMatch(ctx, id, req.TutorID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if !res.Created {
		RespondError(c, http.StatusConflict, CodeAlreadyMatched, errAlreadyMatched)
		return
	}

	notified := h.notifyNewMatch(ctx, id, req.TutorID)
	c.JSON(http.StatusCreated, gin.H{
		"match":    toMatch(res.Match),
		"notified": notified,
	})
}

// notifyNewMatch tells the tutor about the selection. Failures are logged
// and do not undo the match.
func (h *Handler) notifyNewMatch(ctx context.Context, studentID, tutorID int64) bool {
	var firstName string
	if user, err := h.store.GetUser(ctx, studentID); err == nil {
		firstName = user.FirstName
	}
	if err := h.notifier.Notify(ctx, notify.NewMatch(tutorID, studentID, firstName)); err != nil {
		h.log.Warn("failed to send match notification", "tutor_id", tutorID, "error", err)
		return false
	}
	return true
}

// Embeddings and status

type backfillRequest struct {
	Roles       []types.Role `json:"roles"`
	OnlyMissing bool         `json:"only_missing"`
	Workers     int          `json:"workers" binding:"omitempty,min=1,max=64"`
}

func (h *Handler) Backfill(c *gin.Context) {
	var req backfillRequest
	// an empty body means a full backfill
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	stats, err := h.refresher.RefreshAll(c.Request.Context(), &refresher.Config{
		Workers:     req.Workers,
		Roles:       req.Roles,
		OnlyMissing: req.OnlyMissing,
	})
	if err != nil {
		h.respondErr(c, err)
		return
	}
	RespondOK(c, gin.H{
		"model":              stats.Model,
		"students_refreshed": stats.StudentsRefreshed,
		"tutors_refreshed":   stats.TutorsRefreshed,
		"profiles_skipped":   stats.ProfilesSkipped,
		"profiles_failed":    stats.ProfilesFailed,
		"slots_written":      stats.SlotsWritten,
		"duration_ms":        stats.Duration.Milliseconds(),
		"errors":             stats.ErrorMessages,
	})
}

func (h *Handler) Status(c *gin.Context) {
	status, err := h.store.GetStatus(c.Request.Context())
	if err != nil {
		h.respondErr(c, fmt.Errorf("get status: %w", err))
		return
	}
	opts := h.service.Options()
	RespondOK(c, gin.H{
		"statistics": gin.H{
			"users":      status.UsersCount,
			"students":   status.StudentsCount,
			"tutors":     status.TutorsCount,
			"classes":    status.ClassesCount,
			"embeddings": status.EmbeddingsCount,
			"runs":       status.RunsCount,
			"matches":    status.MatchesCount,
		},
		"database": gin.H{
			"schema_version": status.SchemaVersion,
			"driver":         status.DriverName,
			"build_mode":     status.BuildMode,
			"size_mb":        status.DatabaseSizeMB,
		},
		"embedding": gin.H{
			"model":            h.service.Model(),
			"backfill_running": h.refresher.Running(),
			"retrieve_top_k":   opts.RetrieveTopK,
			"rerank_top_k":     opts.RerankTopK,
			"rerank_weights":   opts.RerankWeights,
			"field_weights":    opts.FieldWeights,
		},
	})
}
