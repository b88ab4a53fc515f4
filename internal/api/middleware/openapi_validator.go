package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"elevate.dev/elevate/internal/api/openapi"
	"elevate.dev/elevate/internal/pkg/logger"
)

// Error codes rendered by the contract validator.
const (
	CodeOpenAPIRouteInvalid    = "OPENAPI_ROUTE_INVALID"
	CodeOpenAPIRequestInvalid  = "OPENAPI_REQUEST_INVALID"
	CodeOpenAPIResponseInvalid = "OPENAPI_RESPONSE_INVALID"
)

const responseContractMessage = "response does not conform to OpenAPI contract"

// Authentication is enforced by the directory, not by this API.
var contractOptions = &openapi3filter.Options{
	AuthenticationFunc: func(context.Context, *openapi3filter.AuthenticationInput) error { return nil },
}

// MustOpenAPIValidator is NewOpenAPIValidator for router setup; it panics on error.
func MustOpenAPIValidator(basePath string) gin.HandlerFunc {
	mw, err := NewOpenAPIValidator(basePath)
	if err != nil {
		panic(fmt.Sprintf("init openapi validator: %v", err))
	}
	return mw
}

// NewOpenAPIValidator validates requests and responses of documented routes
// against the embedded API document. Undocumented paths pass through.
// WebSocket upgrades only get request validation.
func NewOpenAPIValidator(basePath string) (gin.HandlerFunc, error) {
	doc, err := openapi.Load()
	if err != nil {
		return nil, err
	}
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("create openapi router: %w", err)
	}
	v := &contractValidator{router: router, basePath: normalizeBasePath(basePath)}
	return v.handle, nil
}

type contractValidator struct {
	router   routers.Router
	basePath string
}

func (v *contractValidator) handle(c *gin.Context) {
	input, err := v.validateRequest(c.Request)
	switch {
	case err == nil:
	case errors.Is(err, routers.ErrPathNotFound):
		c.Next()
		return
	case input == nil:
		abortContract(c, http.StatusBadRequest, CodeOpenAPIRouteInvalid, err.Error())
		return
	default:
		abortContract(c, http.StatusBadRequest, CodeOpenAPIRequestInvalid, err.Error())
		return
	}

	// The upgrade hijacks the connection; there is no response to check.
	if c.IsWebsocket() {
		c.Next()
		return
	}

	rec := newResponseRecorder(c.Writer)
	c.Writer = rec
	c.Next()

	v.validateResponse(c, input, rec)
	if err := rec.flush(); err != nil {
		logger.Warn("Failed to flush validated response",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}
}

// validateRequest resolves the route and validates the request. A nil input
// with an error means the route could not be resolved.
func (v *contractValidator) validateRequest(req *http.Request) (*openapi3filter.RequestValidationInput, error) {
	origPath, origRawPath := req.URL.Path, req.URL.RawPath
	defer func() { req.URL.Path, req.URL.RawPath = origPath, origRawPath }()

	route, params, err := v.findRoute(req)
	if err != nil {
		return nil, err
	}
	input := &openapi3filter.RequestValidationInput{
		Request:    req,
		PathParams: params,
		Route:      route,
		Options:    contractOptions,
	}
	return input, openapi3filter.ValidateRequest(req.Context(), input)
}

// findRoute tries the request path as-is, then with the base path stripped.
// It leaves req.URL rewritten; the caller restores it.
func (v *contractValidator) findRoute(req *http.Request) (*routers.Route, map[string]string, error) {
	route, params, err := v.router.FindRoute(req)
	if err == nil || !isPathNotFound(err) {
		return route, params, err
	}

	path := normalizeValidationPath(v.basePath, req.URL.Path)
	rawPath := req.URL.RawPath
	if rawPath != "" {
		rawPath = normalizeValidationPath(v.basePath, rawPath)
	}
	if path == req.URL.Path && rawPath == req.URL.RawPath {
		return nil, nil, routers.ErrPathNotFound
	}
	req.URL.Path, req.URL.RawPath = path, rawPath

	route, params, err = v.router.FindRoute(req)
	if err != nil && isPathNotFound(err) {
		return nil, nil, routers.ErrPathNotFound
	}
	return route, params, err
}

func (v *contractValidator) validateResponse(c *gin.Context, input *openapi3filter.RequestValidationInput, rec *responseRecorder) {
	out := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: input,
		Status:                 rec.Status(),
		Header:                 rec.Header().Clone(),
		Options:                contractOptions,
	}
	if rec.Size() > 0 {
		out.SetBodyBytes(rec.body.Bytes())
	}
	if err := openapi3filter.ValidateResponse(c.Request.Context(), out); err != nil {
		logger.Error("OpenAPI response validation failed",
			zap.String("request_id", GetRequestID(c.Request.Context())),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", rec.Status()),
			zap.Error(err),
		)
		rec.replaceJSON(http.StatusInternalServerError, gin.H{
			"code":    CodeOpenAPIResponseInvalid,
			"message": responseContractMessage,
		})
	}
}

func normalizeBasePath(basePath string) string {
	basePath = strings.Trim(strings.TrimSpace(basePath), "/")
	if basePath == "" {
		return ""
	}
	return "/" + basePath
}

func normalizeValidationPath(basePath, path string) string {
	switch {
	case basePath == "" && path == "":
		return "/"
	case basePath == "":
		return path
	case path == basePath:
		return "/"
	case strings.HasPrefix(path, basePath+"/"):
		return strings.TrimPrefix(path, basePath)
	}
	return path
}

func isPathNotFound(err error) bool {
	if errors.Is(err, routers.ErrPathNotFound) {
		return true
	}
	var routeErr *routers.RouteError
	if errors.As(err, &routeErr) {
		return strings.Contains(routeErr.Reason, routers.ErrPathNotFound.Error())
	}
	return strings.Contains(err.Error(), routers.ErrPathNotFound.Error())
}

func abortContract(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}
