package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/keyloom/keyloom/pkg/errors"
)

// StatusOK is the status string carried by every successful recipe response.
const StatusOK = "OK"

// OK writes a success payload. The payload struct is expected to carry its
// own `status` field so response shapes stay fixed and fully enumerable;
// OKStatus covers the common case of a bare {"status": "OK"} body.
func OK(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusOK, payload)
}

// OKStatus writes the minimal success envelope.
func OKStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": StatusOK})
}

// Status writes a domain status result. These are expected conditions
// (invalid token, duplicate credential, unknown user) and ride HTTP 200.
func Status(c *gin.Context, status string) {
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// Error renders an error derived from an AppError. Domain status errors are
// emitted through Status; transport errors carry {"message": ...} with their
// HTTP status code.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	if appErr.Status != "" {
		Status(c, appErr.Status)
		return
	}

	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	c.JSON(status, gin.H{"message": appErr.Message})
}
