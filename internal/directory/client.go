// Package directory is the anti-corruption layer toward the directory's
// privileged-access (PIM) API. Callers see domain types only; Graph wire
// details, paging and bearer tokens stay in this package.
//
// Import Path: elevate.dev/elevate/internal/directory
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"elevate.dev/elevate/internal/domain"
	apperrors "elevate.dev/elevate/internal/pkg/errors"
	"elevate.dev/elevate/internal/pkg/logger"
)

// Client abstracts the five directory round trips the role manager needs.
// Composition root binds GraphClient; tests bind fakes.
type Client interface {
	ListEligibleRoles(ctx context.Context) ([]domain.EligibilitySchedule, error)
	ListActiveRoles(ctx context.Context) ([]domain.AssignmentSchedule, error)
	GetCurrentPrincipal(ctx context.Context) (*domain.Principal, error)
	Activate(ctx context.Context, req *domain.ActivationRequest) error
	Deactivate(ctx context.Context, roleDefinitionID, principalID, directoryScopeID string) error
}

const (
	eligibilitySchedulesPath = "/roleManagement/directory/roleEligibilitySchedules"
	assignmentSchedulesPath  = "/roleManagement/directory/roleAssignmentSchedules"
	scheduleRequestsPath     = "/roleManagement/directory/roleAssignmentScheduleRequests"
	mePath                   = "/me"

	provisionedFilter = "status eq 'Provisioned'"

	// maxPages bounds @odata.nextLink chains.
	maxPages = 100
)

// GraphConfig configures a GraphClient.
type GraphConfig struct {
	BaseURL string
	// Timeout applies per round trip (each page counts as one). Zero disables it.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// GraphClient implements Client over the Graph REST API.
type GraphClient struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	tokens  TokenSource
}

var _ Client = (*GraphClient)(nil)

// NewGraphClient creates a GraphClient that authenticates every call with tokens.
func NewGraphClient(cfg GraphConfig, tokens TokenSource) *GraphClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &GraphClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		http:    httpClient,
		tokens:  tokens,
	}
}

// APIError is a non-2xx Graph response.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("graph %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("graph %d %s: %s", e.StatusCode, e.Code, e.Message)
}

type page[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// ListEligibleRoles returns the caller's provisioned eligibility schedules.
func (c *GraphClient) ListEligibleRoles(ctx context.Context) ([]domain.EligibilitySchedule, error) {
	items, err := listAll[domain.EligibilitySchedule](ctx, c, provisionedListPath(eligibilitySchedulesPath))
	if err != nil {
		return nil, fmt.Errorf("list eligible roles: %w", err)
	}
	return items, nil
}

// ListActiveRoles returns the caller's provisioned assignment schedules.
func (c *GraphClient) ListActiveRoles(ctx context.Context) ([]domain.AssignmentSchedule, error) {
	items, err := listAll[domain.AssignmentSchedule](ctx, c, provisionedListPath(assignmentSchedulesPath))
	if err != nil {
		return nil, fmt.Errorf("list active roles: %w", err)
	}
	return items, nil
}

// GetCurrentPrincipal resolves the signed-in principal.
func (c *GraphClient) GetCurrentPrincipal(ctx context.Context) (*domain.Principal, error) {
	q := url.Values{}
	q.Set("$select", "id,displayName,mail")

	var p domain.Principal
	if err := c.do(ctx, http.MethodGet, mePath+"?"+q.Encode(), nil, &p); err != nil {
		return nil, fmt.Errorf("get current principal: %w", err)
	}
	return &p, nil
}

// Activate submits a selfActivate schedule request.
func (c *GraphClient) Activate(ctx context.Context, req *domain.ActivationRequest) error {
	if err := c.do(ctx, http.MethodPost, scheduleRequestsPath, req, nil); err != nil {
		return fmt.Errorf("activate role %s: %w", req.RoleDefinitionID, err)
	}
	return nil
}

// Deactivate submits a selfDeactivate schedule request.
func (c *GraphClient) Deactivate(ctx context.Context, roleDefinitionID, principalID, directoryScopeID string) error {
	key := domain.RoleKey{RoleDefinitionID: roleDefinitionID, DirectoryScopeID: directoryScopeID}
	if err := c.do(ctx, http.MethodPost, scheduleRequestsPath, domain.NewDeactivationRequest(key, principalID), nil); err != nil {
		return fmt.Errorf("deactivate role %s: %w", roleDefinitionID, err)
	}
	return nil
}

func provisionedListPath(path string) string {
	q := url.Values{}
	q.Set("$filter", provisionedFilter)
	q.Set("$expand", "roleDefinition")
	return path + "?" + q.Encode()
}

// listAll follows @odata.nextLink until the collection is exhausted.
func listAll[T any](ctx context.Context, c *GraphClient, first string) ([]T, error) {
	out := []T{}
	next := first
	for pages := 0; next != ""; pages++ {
		if pages == maxPages {
			return nil, fmt.Errorf("paging stopped after %d pages", maxPages)
		}
		var p page[T]
		if err := c.do(ctx, http.MethodGet, next, nil, &p); err != nil {
			return nil, err
		}
		out = append(out, p.Value...)
		next = p.NextLink
	}
	return out, nil
}

// do performs one authenticated round trip. target is either a path relative
// to the base URL or an absolute nextLink.
func (c *GraphClient) do(ctx context.Context, method, target string, body, out any) error {
	endpoint, err := c.resolve(target)
	if err != nil {
		return err
	}

	// Token acquisition may wait on interactive sign-in; only the caller's
	// context bounds it.
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeAuthFailed, "could not acquire directory token", http.StatusUnauthorized)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.BadGateway(err, apperrors.CodeDirectoryUnavailable, "directory request failed")
	}
	defer resp.Body.Close()

	logger.Debug("Directory round trip",
		zap.String("method", method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return classify(decodeAPIError(resp))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.BadGateway(err, apperrors.CodeDirectoryUnavailable, "decode directory response")
	}
	return nil
}

// resolve turns target into an absolute URL. Absolute targets (nextLinks)
// must point at the configured base URL's scheme and host so the bearer
// token never leaves the directory.
func (c *GraphClient) resolve(target string) (string, error) {
	if !strings.HasPrefix(target, "https://") && !strings.HasPrefix(target, "http://") {
		return c.baseURL + target, nil
	}
	link, err := url.Parse(target)
	if err != nil {
		return "", apperrors.BadGateway(err, apperrors.CodeDirectoryUnavailable, "directory returned an invalid next link")
	}
	base, err := url.Parse(c.baseURL)
	if err != nil || !strings.EqualFold(link.Scheme, base.Scheme) || !strings.EqualFold(link.Host, base.Host) {
		return "", apperrors.BadGateway(
			fmt.Errorf("next link host %q does not match %q", link.Host, c.baseURL),
			apperrors.CodeDirectoryUnavailable, "directory returned a foreign next link")
	}
	return target, nil
}

func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var envelope struct {
		Error *APIError `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}

// classify maps a Graph error onto the application error taxonomy.
func classify(apiErr *APIError) error {
	switch apiErr.StatusCode {
	case http.StatusUnauthorized:
		return apperrors.Wrap(apiErr, apperrors.CodeDirectoryUnauthorized, "directory rejected the credentials", http.StatusUnauthorized)
	case http.StatusForbidden:
		return apperrors.Wrap(apiErr, apperrors.CodeDirectoryForbidden, "directory denied the request", http.StatusForbidden)
	case http.StatusBadRequest, http.StatusConflict, http.StatusNotFound:
		// Request-level rejections (policy violations, already active, ...).
		return apperrors.Wrap(apiErr, apperrors.CodeValidationFailed, "directory rejected the request", apiErr.StatusCode)
	default:
		return apperrors.BadGateway(apiErr, apperrors.CodeDirectoryUnavailable, "directory request failed")
	}
}
