package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/faasrt/core/pkg/rterrors"
)

// identityResponse is the host's managed-identity endpoint response
// shape (spec §6). expires_on may be a unix timestamp or an ISO-8601
// string, so it is decoded as a raw string and parsed leniently.
type identityResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresOn   string `json:"expires_on"`
	Resource    string `json:"resource"`
	TokenType   string `json:"token_type"`
	ClientID    string `json:"client_id"`
}

func parseExpiresOn(raw string) (time.Time, error) {
	if sec, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(sec, 0), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized expires_on value %q", raw)
}

// ManagedIdentity talks to the host-provided identity endpoint to
// acquire tokens for the function's system-assigned identity.
type ManagedIdentity struct {
	*Authorization
	endpoint    string
	header      string
	principalID string
	httpClient  *http.Client
	timeout     time.Duration
}

// NewManagedIdentity constructs a ManagedIdentity authorization. endpoint
// and header correspond to the host's IDENTITY_ENDPOINT/IDENTITY_HEADER
// environment values (spec §6).
func NewManagedIdentity(id, endpoint, header, principalID string, timeout time.Duration) *ManagedIdentity {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	mi := &ManagedIdentity{
		endpoint:    endpoint,
		header:      header,
		principalID: principalID,
		httpClient:  &http.Client{Timeout: timeout},
		timeout:     timeout,
	}
	limiter := rate.NewLimiter(rate.Limit(10), 20)
	mi.Authorization = newAuthorization(id, DefaultSkew, limiter, mi.resolve)
	return mi
}

func (mi *ManagedIdentity) resolve(ctx context.Context, resource string) (*Token, error) {
	// Known caller convention: strip a trailing "/.default" suffix.
	resource = strings.TrimSuffix(resource, "/.default")

	q := url.Values{}
	q.Set("api-version", "2019-08-01")
	q.Set("resource", resource)
	if mi.principalID != "" {
		q.Set("principal_id", mi.principalID)
	}

	ctx, cancel := context.WithTimeout(ctx, mi.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mi.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, rterrors.NewAuthError("failed to build managed identity request", rterrors.WithCause(err))
	}
	req.Header.Set("x-identity-header", mi.header)

	resp, err := mi.httpClient.Do(req)
	if err != nil {
		return nil, rterrors.NewAuthError("managed identity endpoint unreachable", rterrors.WithCause(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, rterrors.NewAuthError("managed identity endpoint returned 401")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, rterrors.NewAuthError(
			fmt.Sprintf("managed identity endpoint returned %d: %s", resp.StatusCode, string(body)))
	}

	var ir identityResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return nil, rterrors.NewAuthError("failed to decode managed identity response", rterrors.WithCause(err))
	}

	expires, err := parseExpiresOn(ir.ExpiresOn)
	if err != nil {
		return nil, rterrors.NewAuthError("managed identity response had invalid expires_on", rterrors.WithCause(err))
	}

	return &Token{Resource: resource, Value: ir.AccessToken, Expires: expires}, nil
}
