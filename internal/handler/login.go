package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/successcugo/ULAS/internal/auth"
	"github.com/successcugo/ULAS/internal/identity"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

// Login authenticates a rep or advisor against the user directory, or the
// master admin against configured credentials, and issues an access token.
// All failures present as one generic error.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		subject                   string
		school, department, level string
	)
	switch req.Role {
	case identity.RoleAdmin:
		if !identity.VerifyMaster(req.Username, req.Password, h.cfg.AdminUsername, h.cfg.AdminPassword) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
			return
		}
		subject = h.cfg.AdminUsername
	case identity.RoleRep, identity.RoleAdvisor:
		u, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password, req.Role)
		if err != nil {
			h.fail(c, err)
			return
		}
		subject, school, department, level = u.Username, u.School, u.Department, u.Level
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}

	token, exp, err := auth.Issue(subject, req.Role, school, department, level,
		h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"expires_at":   exp.Unix(),
		"role":         req.Role,
		"username":     subject,
		"school":       school,
		"department":   department,
		"level":        level,
	})
}

// Catalog returns the full school/department/level structure for the
// cascading dropdowns.
func (h *Handler) Catalog(c *gin.Context) {
	structure, err := h.catalog.Full(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	schools, err := h.catalog.Schools(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schools": schools, "structure": structure})
}
