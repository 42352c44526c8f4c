package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/keyloom/keyloom/internal/models"
	appErrors "github.com/keyloom/keyloom/pkg/errors"
	"github.com/keyloom/keyloom/pkg/response"
	appValidator "github.com/keyloom/keyloom/pkg/validator"
)

// bindAndValidate binds the JSON payload into dest and runs struct validation
// rules. A missing required field is reported with the canonical field-missing
// message so API consumers see which field to supply. When validation fails,
// an error response is automatically written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		if ve, ok := err.(appValidator.ValidationErrors); ok {
			if missing := ve.MissingFields(); len(missing) > 0 {
				response.Error(c, appErrors.NewFieldMissing(missing[0], c.Request.Method))
				return false
			}
		}
		response.Error(c, appErrors.NewBadRequest("invalid request payload"))
		return false
	}

	return true
}

// requireQuery reads a mandatory query parameter, writing the canonical
// field-missing response and returning false when it is absent.
func requireQuery(c *gin.Context, name string) (string, bool) {
	value := strings.TrimSpace(c.Query(name))
	if value == "" {
		response.Error(c, appErrors.NewFieldMissing(name, c.Request.Method))
		return "", false
	}
	return value, true
}

// resolveTenant picks the tenant a request operates under: the explicit body
// value when present, then the tenantId query parameter, then the default
// tenant.
func resolveTenant(c *gin.Context, explicit string) string {
	if t := strings.TrimSpace(explicit); t != "" {
		return t
	}
	if t := strings.TrimSpace(c.Query("tenantId")); t != "" {
		return t
	}
	return models.DefaultTenantID
}
