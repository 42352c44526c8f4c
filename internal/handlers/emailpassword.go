package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/keyloom/keyloom/internal/services"
	"github.com/keyloom/keyloom/pkg/response"
)

// EmailPasswordHandler exposes the email-password recipe surface. Sign-in is
// handled by a separate session layer; this core only provisions the login
// method so recovery and linking have something to operate on.
type EmailPasswordHandler struct {
	users *services.UserService
	views *services.UserViewService
}

func NewEmailPasswordHandler(users *services.UserService, views *services.UserViewService) *EmailPasswordHandler {
	return &EmailPasswordHandler{users: users, views: views}
}

type emailPasswordSignUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	TenantID string `json:"tenantId"`
}

// POST /recipe/emailpassword/signup
func (h *EmailPasswordHandler) SignUp(c *gin.Context) {
	var req emailPasswordSignUpRequest
	if !bindAndValidate(c, &req) {
		return
	}
	tenant := resolveTenant(c, req.TenantID)

	method, err := h.users.SignUpEmailPassword(c.Request.Context(), tenant, req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	view, err := h.views.BuildUserView(c.Request.Context(), tenant, method.RecipeUserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, userResponse{
		Status:       response.StatusOK,
		User:         view,
		RecipeUserID: method.RecipeUserID,
	})
}
