package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/successcugo/ULAS/internal/audit"
	"github.com/successcugo/ULAS/internal/auth"
	"github.com/successcugo/ULAS/internal/errs"
	"github.com/successcugo/ULAS/internal/identity"
)

type userView struct {
	Username   string `json:"username"`
	Role       string `json:"role"`
	School     string `json:"school"`
	Department string `json:"department"`
	Level      string `json:"level,omitempty"`
	CreatedBy  string `json:"created_by"`
	CreatedAt  string `json:"created_at"`
}

func viewUsers(users []identity.User) []userView {
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, userView{
			Username:   u.Username,
			Role:       u.Role,
			School:     u.School,
			Department: u.Department,
			Level:      u.Level,
			CreatedBy:  u.CreatedBy,
			CreatedAt:  u.CreatedAt,
		})
	}
	return out
}

// ownedRep resolves username and checks it is a course rep inside the
// advisor's own department. Advisors never see or touch accounts outside
// their department, a rep elsewhere looks the same as a missing one.
func (h *Handler) ownedRep(c *gin.Context, claims auth.Claims, username string) (identity.User, bool) {
	u, err := h.users.Get(c.Request.Context(), username)
	if err != nil {
		h.fail(c, err)
		return identity.User{}, false
	}
	if u.Role != identity.RoleRep || u.School != claims.School || u.Department != claims.Department {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return identity.User{}, false
	}
	return u, true
}

func (h *Handler) AdvisorListReps(c *gin.Context) {
	claims := auth.FromContext(c)
	reps, err := h.users.RepsForDept(c.Request.Context(), claims.School, claims.Department)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reps": viewUsers(reps)})
}

type createRepRequest struct {
	Username        string `json:"username" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
	Level           string `json:"level" binding:"required"`
}

// AdvisorCreateRep provisions one rep account per level: the level must
// exist for the department and must not already have a rep.
func (h *Handler) AdvisorCreateRep(c *gin.Context) {
	claims := auth.FromContext(c)
	ctx := c.Request.Context()

	var req createRepRequest
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

	levels, err := h.catalog.Levels(ctx, claims.School, claims.Department)
	if err != nil {
		h.fail(c, err)
		return
	}
	valid := false
	for _, l := range levels {
		if l == req.Level {
			valid = true
			break
		}
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown level for this department"})
		return
	}

	reps, err := h.users.RepsForDept(ctx, claims.School, claims.Department)
	if err != nil {
		h.fail(c, err)
		return
	}
	for _, r := range reps {
		if r.Level == req.Level {
			c.JSON(http.StatusConflict, gin.H{"error": "this level already has a course rep"})
			return
		}
	}

	err = h.users.Create(ctx, req.Username, req.Password, identity.RoleRep,
		claims.School, claims.Department, req.Level, claims.Subject)
	if errors.Is(err, errs.ErrAlreadyExists) {
		c.JSON(http.StatusConflict, gin.H{"error": "this username is already taken"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	e := audit.NewEvent(claims.Subject, "rep_create")
	e.School = claims.School
	e.Department = claims.Department
	e.Level = req.Level
	e.Detail = req.Username
	h.publishAudit(ctx, e)

	c.JSON(http.StatusCreated, gin.H{"username": req.Username, "level": req.Level})
}

func (h *Handler) AdvisorDeleteRep(c *gin.Context) {
	claims := auth.FromContext(c)
	username := c.Param("username")

	rep, ok := h.ownedRep(c, claims, username)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.users.Delete(ctx, username); err != nil {
		h.fail(c, err)
		return
	}

	e := audit.NewEvent(claims.Subject, "rep_delete")
	e.School = claims.School
	e.Department = claims.Department
	e.Level = rep.Level
	e.Detail = username
	h.publishAudit(ctx, e)

	c.JSON(http.StatusOK, gin.H{"deleted": username})
}

type passwordResetRequest struct {
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

func (h *Handler) AdvisorResetRepPassword(c *gin.Context) {
	claims := auth.FromContext(c)
	username := c.Param("username")

	if _, ok := h.ownedRep(c, claims, username); !ok {
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

	ctx := c.Request.Context()
	if err := h.users.UpdatePassword(ctx, username, req.Password); err != nil {
		h.fail(c, err)
		return
	}

	e := audit.NewEvent(claims.Subject, "rep_password_reset")
	e.School = claims.School
	e.Department = claims.Department
	e.Detail = username
	h.publishAudit(ctx, e)

	c.JSON(http.StatusOK, gin.H{"updated": username})
}

func (h *Handler) AdvisorListCoAdvisors(c *gin.Context) {
	claims := auth.FromContext(c)
	advisors, err := h.users.AdvisorsForDept(c.Request.Context(), claims.School, claims.Department)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"advisors": viewUsers(advisors)})
}

// AdvisorResetCoAdvisorPassword lets advisors recover each other's accounts
// within one department.
func (h *Handler) AdvisorResetCoAdvisorPassword(c *gin.Context) {
	claims := auth.FromContext(c)
	username := c.Param("username")
	ctx := c.Request.Context()

	target, err := h.users.Get(ctx, username)
	if err != nil {
		h.fail(c, err)
		return
	}
	if target.Role != identity.RoleAdvisor || target.School != claims.School || target.Department != claims.Department {
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
	e.School = claims.School
	e.Department = claims.Department
	e.Detail = username
	h.publishAudit(ctx, e)

	c.JSON(http.StatusOK, gin.H{"updated": username})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// AdvisorChangeOwnPassword requires the current password before accepting
// a new one.
func (h *Handler) AdvisorChangeOwnPassword(c *gin.Context) {
	claims := auth.FromContext(c)
	ctx := c.Request.Context()

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	me, err := h.users.Get(ctx, claims.Subject)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !identity.VerifyPassword(req.CurrentPassword, me.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "current password is incorrect"})
		return
	}
	if msg := validatePassword(req.Password, req.ConfirmPassword); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	if err := h.users.UpdatePassword(ctx, claims.Subject, req.Password); err != nil {
		h.fail(c, err)
		return
	}

	e := audit.NewEvent(claims.Subject, "password_change")
	e.School = claims.School
	e.Department = claims.Department
	h.publishAudit(ctx, e)

	c.JSON(http.StatusOK, gin.H{"updated": claims.Subject})
}

func (h *Handler) AdvisorGetAbbreviation(c *gin.Context) {
	claims := auth.FromContext(c)
	abbr, err := h.settings.DeptAbbreviation(c.Request.Context(), claims.Department)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"department": claims.Department, "abbreviation": abbr})
}

type abbreviationRequest struct {
	Abbreviation string `json:"abbreviation" binding:"required"`
}

// AdvisorSetAbbreviation overrides the abbreviation used in exported CSV
// filenames for the advisor's department.
func (h *Handler) AdvisorSetAbbreviation(c *gin.Context) {
	claims := auth.FromContext(c)
	ctx := c.Request.Context()

	var req abbreviationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	abbr := strings.TrimSpace(req.Abbreviation)
	if abbr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "abbreviation cannot be empty"})
		return
	}
	if err := h.settings.SetDeptAbbreviation(ctx, claims.Department, abbr); err != nil {
		h.fail(c, err)
		return
	}

	e := audit.NewEvent(claims.Subject, "abbreviation_set")
	e.School = claims.School
	e.Department = claims.Department
	e.Detail = abbr
	h.publishAudit(ctx, e)

	c.JSON(http.StatusOK, gin.H{"department": claims.Department, "abbreviation": strings.ToUpper(abbr)})
}
