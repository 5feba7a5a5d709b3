package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"magazine/internal/assets"
	"magazine/internal/user"
)

const dateLayout = "2006-01-02"

func (h *handler) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.Users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *handler) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.Users.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *handler) forgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if err := h.Users.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "If the address is registered, a new password has been sent to it."})
}

func (h *handler) listUsers(c *gin.Context) {
	users, err := h.Users.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": users})
}

func (h *handler) createUser(c *gin.Context) {
	var in user.CreateInput
	if !bindJSON(c, &in) {
		return
	}
	u, err := h.Users.CreateUser(c.Request.Context(), caller(c).Subject, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully!", "data": u})
}

func (h *handler) profile(c *gin.Context) {
	u, err := h.Users.Profile(c.Request.Context(), caller(c).Subject)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": u})
}

func (h *handler) updateProfile(c *gin.Context) {
	form, ok := h.parseForm(c, 1)
	if !ok {
		return
	}
	in, err := profileInput(form.Value)
	if err != nil {
		respondError(c, err)
		return
	}

	uploads, closeAll, err := formUploads(form, "picture")
	if err != nil {
		respondError(c, err)
		return
	}
	defer closeAll()
	var picture *assets.Upload
	if len(uploads) > 0 {
		picture = &uploads[0]
	}

	u, err := h.Users.UpdateProfile(c.Request.Context(), caller(c).Subject, in, picture)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile updated successfully!", "data": u})
}

// profileInput reads the optional profile fields; absent keys stay nil.
func profileInput(values map[string][]string) (user.ProfileInput, error) {
	var in user.ProfileInput
	get := func(key string) (string, bool) {
		v, ok := values[key]
		if !ok || len(v) == 0 {
			return "", false
		}
		return strings.TrimSpace(v[0]), true
	}

	if v, ok := get("full_name"); ok {
		in.FullName = &v
	}
	if v, ok := get("phone_number"); ok {
		in.PhoneNumber = &v
	}
	if v, ok := get("dob"); ok && v != "" {
		dob, err := time.Parse(dateLayout, v)
		if err != nil {
			if dob, err = time.Parse(time.RFC3339, v); err != nil {
				return in, errBadDate
			}
		}
		in.DOB = &dob
	}
	if v, ok := get("gender"); ok && v != "" {
		g, err := strconv.ParseBool(v)
		if err != nil {
			return in, errBadGender
		}
		in.Gender = &g
	}
	return in, nil
}

func (h *handler) deleteUser(c *gin.Context) {
	if err := h.Users.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully!"})
}

type nameRequest struct {
	Name string `json:"name"`
}

func (h *handler) listRoles(c *gin.Context) {
	roles, err := h.Users.ListRoles(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": roles})
}

func (h *handler) createRole(c *gin.Context) {
	var req nameRequest
	if !bindJSON(c, &req) {
		return
	}
	role, err := h.Users.CreateRole(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": role})
}

func (h *handler) listFaculties(c *gin.Context) {
	faculties, err := h.Users.ListFaculties(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": faculties})
}

func (h *handler) createFaculty(c *gin.Context) {
	var req nameRequest
	if !bindJSON(c, &req) {
		return
	}
	faculty, err := h.Users.CreateFaculty(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": faculty})
}
