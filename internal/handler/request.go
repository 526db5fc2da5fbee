package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/aidly/aidly-api/internal/middleware"
	"github.com/aidly/aidly-api/internal/models"
	appErrors "github.com/aidly/aidly-api/pkg/errors"
)

const dateLayout = "2006-01-02"

// bindJSON decodes the body into dst and runs struct validation. An empty body is allowed
// when allowEmpty is set so optional payloads can be omitted.
func bindJSON(c *gin.Context, validate *validator.Validate, dst interface{}, allowEmpty bool) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload")
		}
	}
	if validate == nil {
		return nil
	}
	if err := validate.Struct(dst); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid payload"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+" failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}

func callerFromContext(c *gin.Context) (*middleware.Caller, error) {
	caller := middleware.CallerFrom(c)
	if caller == nil {
		return nil, appErrors.ErrUnauthorized
	}
	return caller, nil
}

// recipientFromQuery resolves the notifiable selector, defaulting to the caller.
func recipientFromQuery(c *gin.Context) (models.Recipient, error) {
	id := strings.TrimSpace(c.Query("notifiable_id"))
	kind := models.NotifiableType(strings.TrimSpace(c.Query("notifiable_type")))
	if id == "" {
		caller, err := callerFromContext(c)
		if err != nil {
			return models.Recipient{}, appErrors.Clone(appErrors.ErrValidation, "notifiable_id is required")
		}
		return caller.Recipient(), nil
	}
	if kind == "" {
		kind = models.NotifiableUser
	}
	if kind != models.NotifiableUser && kind != models.NotifiableClient {
		return models.Recipient{}, appErrors.Clone(appErrors.ErrValidation, "notifiable_type must be user or client")
	}
	return models.Recipient{ID: id, Type: kind}, nil
}

func parseDateQuery(c *gin.Context, name string) (time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid "+name+" format, expected YYYY-MM-DD")
	}
	return parsed, nil
}

func parseIntQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid "+name+" parameter")
	}
	return value, nil
}

func parseBoolQuery(c *gin.Context, name string) (*bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid "+name+" parameter")
	}
	return &value, nil
}

// withTiming merges cache and timing metadata into the response meta.
func withTiming(c *gin.Context, cacheHit bool, start time.Time) map[string]interface{} {
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	return meta
}
