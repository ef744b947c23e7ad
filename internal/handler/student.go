package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/successcugo/ULAS/internal/attendance"
	"github.com/successcugo/ULAS/internal/auth"
)

// roleStudent tags the short-lived ticket issued after a successful code
// verification. Students have no accounts; the ticket is what gates the
// entry submission endpoint.
const roleStudent = "student"

func keyFromParams(c *gin.Context) attendance.Key {
	return attendance.Key{
		School:     c.Param("school"),
		Department: c.Param("department"),
		Level:      c.Param("level"),
	}
}

// StudentProbe reports whether an attendance session is running for the
// cohort. The rotating token is never included here.
func (h *Handler) StudentProbe(c *gin.Context) {
	sess, _, err := h.sessions.Load(c.Request.Context(), keyFromParams(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"course_code": sess.CourseCode,
		"school":      sess.School,
		"department":  sess.Department,
		"level":       sess.Level,
		"started_at":  sess.StartedAt,
		"entry_count": len(sess.Entries),
	})
}

type verifyRequest struct {
	Code string `json:"code" binding:"required"`
}

// StudentVerify checks the submitted 4-digit code against a fresh read of
// the session. The check is dual: the code must match the stored token AND
// the token must not have aged past its lifetime, even if no refresh has
// been persisted yet. Success issues a short ticket for the entry form —
// the form takes longer to fill than one rotation period, so the entry
// submission itself cannot re-check the code.
func (h *Handler) StudentVerify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	key := keyFromParams(c)

	sess, _, err := h.sessions.Load(c.Request.Context(), key)
	if err != nil {
		h.fail(c, err)
		return
	}
	lifetime, err := h.settings.TokenLifetime(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if !sess.ValidateToken(req.Code, lifetime) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired code — ask your rep for the current code and try again"})
		return
	}

	ticket, exp, err := auth.Issue(roleStudent, roleStudent, key.School, key.Department, key.Level,
		h.cfg.JWTIssuer, h.cfg.JWTSigningKey, entryTicketTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ticket issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "ticket": ticket, "expires_at": exp.Unix()})
}

type entryRequest struct {
	Surname    string `json:"surname" binding:"required"`
	OtherNames string `json:"other_names" binding:"required"`
	Matric     string `json:"matric" binding:"required"`
	DeviceID   string `json:"device_id"`
}

// StudentSubmit admits one attendance entry. The session is re-read fresh;
// the in-flight copy the student verified against may be arbitrarily stale.
func (h *Handler) StudentSubmit(c *gin.Context) {
	key := keyFromParams(c)
	claims := auth.FromContext(c)
	if claims.School != key.School || claims.Department != key.Department || claims.Level != key.Level {
		c.JSON(http.StatusForbidden, gin.H{"error": "ticket does not match this session"})
		return
	}

	var req entryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Surname) == "" || strings.TrimSpace(req.OtherNames) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name fields cannot be empty"})
		return
	}
	if err := attendance.ValidateMatric(req.Matric); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	sess, rev, err := h.sessions.Load(ctx, key)
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := h.sessions.CheckAndRegisterDevice(ctx, key, sess.CourseCode, req.DeviceID, req.Matric); err != nil {
		h.fail(c, err)
		return
	}

	entry, err := sess.AddEntry(req.Surname, req.OtherNames, req.Matric)
	if err != nil {
		h.fail(c, err)
		return
	}
	if _, err := h.sessions.Save(ctx, key, sess, rev); err != nil {
		h.fail(c, err)
		return
	}

	e := h.sessionEvent("student", "entry_add", sess)
	e.Detail = entry.Matric
	h.publishAudit(ctx, e)

	c.JSON(http.StatusCreated, gin.H{"entry": entry})
}
