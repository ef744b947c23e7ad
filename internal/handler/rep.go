package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/successcugo/ULAS/internal/attendance"
	"github.com/successcugo/ULAS/internal/auth"
	"github.com/successcugo/ULAS/internal/errs"
)

func repKey(c *gin.Context) (auth.Claims, attendance.Key) {
	claims := auth.FromContext(c)
	return claims, attendance.Key{
		School:     claims.School,
		Department: claims.Department,
		Level:      claims.Level,
	}
}

func sessionView(sess *attendance.Session, lifetime int) gin.H {
	return gin.H{
		"active":      true,
		"course_code": sess.CourseCode,
		"started_at":  sess.StartedAt,
		"token":       sess.Token,
		"remaining":   sess.TokenRemaining(lifetime),
		"lifetime":    lifetime,
		"entries":     sess.Entries,
		"entry_count": len(sess.Entries),
		"next_sn":     sess.NextSN,
	}
}

// RepSession is the dashboard poll. Each poll recomputes the rotation from
// wall-clock time; when the token has aged out it is rotated and persisted
// before being returned. There is no background timer anywhere.
func (h *Handler) RepSession(c *gin.Context) {
	ctx := c.Request.Context()
	_, key := repKey(c)

	sess, rev, err := h.sessions.Load(ctx, key)
	if errors.Is(err, errs.ErrNotFound) {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	lifetime, err := h.settings.TokenLifetime(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}

	if sess.RefreshToken(lifetime) {
		if _, werr := h.sessions.Save(ctx, key, sess, rev); werr != nil {
			if !errors.Is(werr, errs.ErrConflict) {
				h.fail(c, werr)
				return
			}
			// Someone wrote between our read and the refresh persist
			// (typically a student entry). Their copy wins; show it.
			if fresh, _, lerr := h.sessions.Load(ctx, key); lerr == nil {
				sess = fresh
			} else {
				h.log.Warn("reload after refresh conflict failed", zap.Error(lerr))
			}
		}
	}

	c.JSON(http.StatusOK, sessionView(sess, lifetime))
}

type startRequest struct {
	CourseCode string `json:"course_code" binding:"required"`
	Force      bool   `json:"force"`
}

// RepStart begins a session for the rep's cohort. A leftover live session
// is rejected until the rep confirms with force — starting never clobbers
// silently.
func (h *Handler) RepStart(c *gin.Context) {
	claims, key := repKey(c)

	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.CourseCode) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "please enter a course code"})
		return
	}

	ctx := c.Request.Context()
	sess, _, err := h.sessions.Start(ctx, key, req.CourseCode, claims.Subject, req.Force)
	if errors.Is(err, errs.ErrAlreadyExists) {
		c.JSON(http.StatusConflict, gin.H{
			"error":          "an attendance session is already running for your level",
			"force_required": true,
		})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	lifetime, err := h.settings.TokenLifetime(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.publishAudit(ctx, h.sessionEvent(claims.Subject, "session_start", sess))
	c.JSON(http.StatusCreated, sessionView(sess, lifetime))
}

// RepAddEntry manually records a student. The session is re-fetched fresh
// so entries submitted by students since the rep's last view are not lost.
func (h *Handler) RepAddEntry(c *gin.Context) {
	claims, key := repKey(c)

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
	entry, err := sess.AddEntry(req.Surname, req.OtherNames, req.Matric)
	if err != nil {
		h.fail(c, err)
		return
	}
	if _, err := h.sessions.Save(ctx, key, sess, rev); err != nil {
		h.fail(c, err)
		return
	}

	e := h.sessionEvent(claims.Subject, "entry_add", sess)
	e.Detail = entry.Matric
	h.publishAudit(ctx, e)

	c.JSON(http.StatusCreated, gin.H{"entry": entry, "entry_count": len(sess.Entries)})
}

// RepEditEntry rewrites one entry, identified by its sequence number.
func (h *Handler) RepEditEntry(c *gin.Context) {
	claims, key := repKey(c)

	sn, err := strconv.Atoi(c.Param("sn"))
	if err != nil || sn <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sequence number"})
		return
	}
	var req entryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
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
	if err := sess.EditEntry(sn, req.Surname, req.OtherNames, req.Matric); err != nil {
		h.fail(c, err)
		return
	}
	if _, err := h.sessions.Save(ctx, key, sess, rev); err != nil {
		h.fail(c, err)
		return
	}

	e := h.sessionEvent(claims.Subject, "entry_edit", sess)
	e.Detail = fmt.Sprintf("sn=%d", sn)
	h.publishAudit(ctx, e)

	c.JSON(http.StatusOK, gin.H{"entries": sess.Entries})
}

// RepDeleteEntry removes one entry. Sequence numbers are never reused.
func (h *Handler) RepDeleteEntry(c *gin.Context) {
	claims, key := repKey(c)

	sn, err := strconv.Atoi(c.Param("sn"))
	if err != nil || sn <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sequence number"})
		return
	}

	ctx := c.Request.Context()
	sess, rev, err := h.sessions.Load(ctx, key)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := sess.DeleteEntry(sn); err != nil {
		h.fail(c, err)
		return
	}
	if _, err := h.sessions.Save(ctx, key, sess, rev); err != nil {
		h.fail(c, err)
		return
	}

	e := h.sessionEvent(claims.Subject, "entry_delete", sess)
	e.Detail = fmt.Sprintf("sn=%d", sn)
	h.publishAudit(ctx, e)

	c.JSON(http.StatusOK, gin.H{"entries": sess.Entries})
}

// RepEnd closes the session: freshest copy, CSV push to the archive, then
// delete. Push failure leaves the session live and points the rep at the
// local backup download.
func (h *Handler) RepEnd(c *gin.Context) {
	claims, key := repKey(c)
	ctx := c.Request.Context()

	sess, err := h.sessions.End(ctx, key)
	if errors.Is(err, errs.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		h.log.Error("session export failed", zap.String("course", key.Path()), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"error":  "push to archive failed — the session is still open, download the CSV backup",
			"backup": "/v1/rep/session/export",
		})
		return
	}

	filename, ferr := h.sessions.Filename(ctx, sess)
	if ferr != nil {
		filename = ""
	}

	e := h.sessionEvent(claims.Subject, "session_end", sess)
	e.Detail = fmt.Sprintf("entries=%d", len(sess.Entries))
	h.publishAudit(ctx, e)

	c.JSON(http.StatusOK, gin.H{"exported": filename, "entry_count": len(sess.Entries)})
}

// RepExport streams the current session as a CSV backup without closing it.
func (h *Handler) RepExport(c *gin.Context) {
	_, key := repKey(c)
	ctx := c.Request.Context()

	sess, _, err := h.sessions.Load(ctx, key)
	if err != nil {
		h.fail(c, err)
		return
	}
	filename, err := h.sessions.Filename(ctx, sess)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", attendance.CSV(sess))
}
