// Package handler exposes the attendance system as a JSON API.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/successcugo/ULAS/internal/attendance"
	"github.com/successcugo/ULAS/internal/audit"
	"github.com/successcugo/ULAS/internal/auth"
	"github.com/successcugo/ULAS/internal/catalog"
	"github.com/successcugo/ULAS/internal/config"
	"github.com/successcugo/ULAS/internal/errs"
	"github.com/successcugo/ULAS/internal/identity"
	"github.com/successcugo/ULAS/internal/queue"
	"github.com/successcugo/ULAS/internal/settings"
)

// entryTicketTTL bounds how long a student has between verifying the code
// and submitting the entry form.
const entryTicketTTL = 15 * time.Minute

// Handler carries the service dependencies for every route.
type Handler struct {
	cfg      config.App
	log      *zap.Logger
	users    *identity.Service
	sessions *attendance.Service
	settings *settings.Service
	catalog  *catalog.Provider
	events   queue.Queue
}

// New wires a handler.
func New(cfg config.App, log *zap.Logger, users *identity.Service, sessions *attendance.Service,
	st *settings.Service, cat *catalog.Provider, events queue.Queue) *Handler {
	return &Handler{
		cfg:      cfg,
		log:      log,
		users:    users,
		sessions: sessions,
		settings: st,
		catalog:  cat,
		events:   events,
	}
}

// Register mounts all routes on r.
func (h *Handler) Register(r *gin.Engine) {
	v1 := r.Group("/v1")
	v1.POST("/auth/login", h.Login)
	v1.GET("/catalog", h.Catalog)

	student := v1.Group("/sessions/:school/:department/:level")
	student.GET("", h.StudentProbe)
	student.POST("/verify", h.StudentVerify)
	student.POST("/entries",
		auth.RequireRole(h.cfg.JWTSigningKey, h.cfg.JWTIssuer, roleStudent), h.StudentSubmit)

	rep := v1.Group("/rep", auth.RequireRole(h.cfg.JWTSigningKey, h.cfg.JWTIssuer, identity.RoleRep))
	rep.GET("/session", h.RepSession)
	rep.POST("/session", h.RepStart)
	rep.POST("/session/end", h.RepEnd)
	rep.GET("/session/export", h.RepExport)
	rep.POST("/session/entries", h.RepAddEntry)
	rep.PUT("/session/entries/:sn", h.RepEditEntry)
	rep.DELETE("/session/entries/:sn", h.RepDeleteEntry)

	adv := v1.Group("/advisor", auth.RequireRole(h.cfg.JWTSigningKey, h.cfg.JWTIssuer, identity.RoleAdvisor))
	adv.GET("/reps", h.AdvisorListReps)
	adv.POST("/reps", h.AdvisorCreateRep)
	adv.DELETE("/reps/:username", h.AdvisorDeleteRep)
	adv.POST("/reps/:username/password", h.AdvisorResetRepPassword)
	adv.GET("/advisors", h.AdvisorListCoAdvisors)
	adv.POST("/advisors/:username/password", h.AdvisorResetCoAdvisorPassword)
	adv.POST("/password", h.AdvisorChangeOwnPassword)
	adv.GET("/abbreviation", h.AdvisorGetAbbreviation)
	adv.PUT("/abbreviation", h.AdvisorSetAbbreviation)

	admin := v1.Group("/admin", auth.RequireRole(h.cfg.JWTSigningKey, h.cfg.JWTIssuer, identity.RoleAdmin))
	admin.GET("/advisors", h.AdminListAdvisors)
	admin.POST("/advisors", h.AdminCreateAdvisor)
	admin.DELETE("/advisors/:username", h.AdminDeleteAdvisor)
	admin.POST("/advisors/:username/password", h.AdminResetAdvisorPassword)
	admin.GET("/settings", h.AdminGetSettings)
	admin.PUT("/settings", h.AdminUpdateSettings)
	admin.PUT("/structure", h.AdminReplaceStructure)
}

// fail converts service errors to user-facing responses. Store failures and
// revision conflicts both end as "try again" from the user's point of view,
// but conflicts keep their own status so a client can retry immediately.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, attendance.ErrEntryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundMessage(err)})
	case errors.Is(err, errs.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "someone else saved changes first — please try again"})
	case errors.Is(err, errs.ErrAlreadyExists),
		errors.Is(err, attendance.ErrDuplicateName),
		errors.Is(err, attendance.ErrDuplicateMatric),
		errors.Is(err, attendance.ErrDeviceBound):
		c.JSON(http.StatusConflict, gin.H{"error": userMessage(err)})
	default:
		h.log.Error("storage failure", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not reach storage — please try again"})
	}
}

func notFoundMessage(err error) string {
	if errors.Is(err, attendance.ErrEntryNotFound) {
		return attendance.ErrEntryNotFound.Error()
	}
	return "not found"
}

// userMessage strips wrapping context from conflict errors so the client
// sees just the human-readable part.
func userMessage(err error) string {
	for _, sentinel := range []error{
		attendance.ErrDuplicateName,
		attendance.ErrDuplicateMatric,
		attendance.ErrDeviceBound,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

// publishAudit records a mutation event; a full queue never fails the
// operation that triggered it.
func (h *Handler) publishAudit(ctx context.Context, e audit.Event) {
	if err := audit.Publish(ctx, h.events, e); err != nil {
		h.log.Warn("audit publish failed", zap.String("action", e.Action), zap.Error(err))
	}
}

func (h *Handler) sessionEvent(actor, action string, sess *attendance.Session) audit.Event {
	e := audit.NewEvent(actor, action)
	e.School = sess.School
	e.Department = sess.Department
	e.Level = sess.Level
	e.CourseCode = sess.CourseCode
	return e
}

func validatePassword(password, confirm string) string {
	switch {
	case strings.TrimSpace(password) == "":
		return "password cannot be empty"
	case password != confirm:
		return "passwords do not match"
	case len(password) < 6:
		return "password must be at least 6 characters"
	}
	return ""
}
