package validation

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

// BindAndValidate decodes the JSON body into out and validates it.
// On failure the 400 response is already written; the handler just returns.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	err := c.ShouldBindJSON(out)
	if err != nil {
		badRequest(c, gin.H{"error": "invalid_request_body", "msg": err.Error()})
		return err
	}
	if err = v.Struct(out); err != nil {
		badRequest(c, gin.H{"error": "validation_failed", "fields": ErrorsToMap(err)})
		return err
	}
	return nil
}

// ErrorsToMap flattens validator errors into field -> failed tag.
func ErrorsToMap(err error) map[string]string {
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return map[string]string{"error": err.Error()}
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.StructNamespace()] = fe.Tag()
	}
	return fields
}

func badRequest(c *gin.Context, body gin.H) {
	c.AbortWithStatusJSON(http.StatusBadRequest, body)
}
