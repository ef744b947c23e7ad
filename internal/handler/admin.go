package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/successcugo/ULAS/internal/audit"
	"github.com/successcugo/ULAS/internal/auth"
	"github.com/successcugo/ULAS/internal/catalog"
	"github.com/successcugo/ULAS/internal/errs"
	"github.com/successcugo/ULAS/internal/identity"
	"github.com/successcugo/ULAS/internal/settings"
)

func (h *Handler) AdminListAdvisors(c *gin.Context) {
	advisors, err := h.users.AllAdvisors(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"advisors": viewUsers(advisors)})
}

type createAdvisorRequest struct {
	Username        string `json:"username" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
	School          string `json:"school" binding:"required"`
	Department      string `json:"department" binding:"required"`
}

// AdminCreateAdvisor provisions an advisor account bound to one department.
// The school and department must exist in the catalog.
func (h *Handler) AdminCreateAdvisor(c *gin.Context) {
	claims := auth.FromContext(c)
	ctx := c.Request.Context()

	var req createAdvisorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username cannot be empty"})
		return
	}
	if msg := validatePassword(req.Password, req.ConfirmPassword); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	depts, err := h.catalog.Departments(ctx, req.School)
	if err != nil {
		h.fail(c, err)
		return
	}
	known := false
	for _, d := range depts {
		if d == req.Department {
			known = true
			break
		}
	}
	if !known {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown school or department"})
		return
	}

	err = h.users.Create(ctx, req.Username, req.Password, identity.RoleAdvisor,
		req.School, req.Department, "", claims.Subject)
	if errors.Is(err, errs.ErrAlreadyExists) {
		c.JSON(http.StatusConflict, gin.H{"error": "this username is already taken"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	e := audit.NewEvent(claims.Subject, "advisor_create")
	e.School = req.School
	e.Department = req.Department
	e.Detail = req.Username
	h.publishAudit(ctx, e)

	c.JSON(http.StatusCreated, gin.H{"username": req.Username, "department": req.Department})
}

func (h *Handler) AdminDeleteAdvisor(c *gin.Context) {
	claims := auth.FromContext(c)
	username := c.Param("username")
	ctx := c.Request.Context()

	target, err := h.users.Get(ctx, username)
	if err != nil {
		h.fail(c, err)
		return
	}
	if target.Role != identity.RoleAdvisor {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err := h.users.Delete(ctx, username); err != nil {
		h.fail(c, err)
		return
	}

	e := audit.NewEvent(claims.Subject, "advisor_delete")
	e.School = target.School
	e.Department = target.Department
	e.Detail = username
	h.publishAudit(ctx, e)

	c.JSON(http.StatusOK, gin.H{"deleted": username})
}

func (h *Handler) AdminResetAdvisorPassword(c *gin.Context) {
	claims := auth.FromContext(c)
	username := c.Param("username")
	ctx := c.Request.Context()

	target, err := h.users.Get(ctx, username)
	if err != nil {
		h.fail(c, err)
		return
	}
	if target.Role != identity.RoleAdvisor {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	var req passwordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if msg := validatePassword(req.Password, req.ConfirmPassword); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	if err := h.users.UpdatePassword(ctx, username, req.Password); err != nil {
		h.fail(c, err)
		return
	}

	e := audit.NewEvent(claims.Subject, "advisor_password_reset")
	e.School = target.School
	e.Department = target.Department
	e.Detail = username
	h.publishAudit(ctx, e)

	c.JSON(http.StatusOK, gin.H{"updated": username})
}

func (h *Handler) AdminGetSettings(c *gin.Context) {
	st, err := h.settings.Get(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token_lifetime":     st.TokenLifetime,
		"dept_abbreviations": st.DeptAbbreviations,
		"min_lifetime":       settings.MinTokenLifetime,
		"max_lifetime":       settings.MaxTokenLifetime,
	})
}

type updateSettingsRequest struct {
	TokenLifetime int `json:"token_lifetime" binding:"required"`
}

// AdminUpdateSettings changes the campus-wide token rotation period. Out of
// range values are rejected, never clamped.
func (h *Handler) AdminUpdateSettings(c *gin.Context) {
	claims := auth.FromContext(c)
	ctx := c.Request.Context()

	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TokenLifetime < settings.MinTokenLifetime || req.TokenLifetime > settings.MaxTokenLifetime {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token lifetime must be between 3 and 300 seconds"})
		return
	}
	if err := h.settings.SetTokenLifetime(ctx, req.TokenLifetime); err != nil {
		h.fail(c, err)
		return
	}

	e := audit.NewEvent(claims.Subject, "settings_update")
	e.Detail = "token_lifetime"
	h.publishAudit(ctx, e)

	c.JSON(http.StatusOK, gin.H{"token_lifetime": req.TokenLifetime})
}

// AdminReplaceStructure swaps the whole school/department catalog in one
// write. An empty structure is refused so a bad upload cannot wipe it.
func (h *Handler) AdminReplaceStructure(c *gin.Context) {
	claims := auth.FromContext(c)
	ctx := c.Request.Context()

	var st catalog.Structure
	if err := c.ShouldBindJSON(&st); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(st.Schools) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "structure must contain at least one school"})
		return
	}
	if err := h.catalog.Save(ctx, st); err != nil {
		h.fail(c, err)
		return
	}

	e := audit.NewEvent(claims.Subject, "structure_replace")
	h.publishAudit(ctx, e)

	c.JSON(http.StatusOK, gin.H{"schools": len(st.Schools)})
}
