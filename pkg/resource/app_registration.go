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

type tokenEndpointResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
	ExpiresOn   string `json:"expires_on"`
}

// AppRegistration uses an OAuth2 client-credentials flow against a
// tenant-scoped authority to acquire resource-scoped tokens.
type AppRegistration struct {
	*Authorization
	authority  string
	tenant     string
	clientID   string
	secret     string
	httpClient *http.Client
	timeout    time.Duration
	clock      func() time.Time
}

// NewAppRegistration constructs an AppRegistration authorization.
func NewAppRegistration(id, authority, tenant, clientID, secret string, timeout time.Duration) *AppRegistration {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ar := &AppRegistration{
		authority:  strings.TrimSuffix(authority, "/"),
		tenant:     tenant,
		clientID:   clientID,
		secret:     secret,
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		clock:      time.Now,
	}
	limiter := rate.NewLimiter(rate.Limit(10), 20)
	ar.Authorization = newAuthorization(id, DefaultSkew, limiter, ar.resolve)
	return ar
}

func (ar *AppRegistration) resolve(ctx context.Context, resource string) (*Token, error) {
	endpoint := fmt.Sprintf("%s/%s/oauth2/v2.0/token", ar.authority, ar.tenant)

	form := url.Values{}
	form.Set("client_id", ar.clientID)
	form.Set("client_secret", ar.secret)
	form.Set("scope", resource)
	form.Set("grant_type", "client_credentials")

	ctx, cancel := context.WithTimeout(ctx, ar.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, rterrors.NewAuthError("failed to build app registration request", rterrors.WithCause(err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ar.httpClient.Do(req)
	if err != nil {
		return nil, rterrors.NewAuthError("app registration token endpoint unreachable", rterrors.WithCause(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, rterrors.NewAuthError(
			fmt.Sprintf("app registration token endpoint returned %d: %s", resp.StatusCode, string(body)))
	}

	var tr tokenEndpointResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, rterrors.NewAuthError("failed to decode app registration response", rterrors.WithCause(err))
	}

	var expires time.Time
	switch {
	case tr.ExpiresOn != "":
		expires, err = parseExpiresOn(tr.ExpiresOn)
	case tr.ExpiresIn != "":
		var secs int64
		secs, err = strconv.ParseInt(tr.ExpiresIn, 10, 64)
		expires = ar.clock().Add(time.Duration(secs) * time.Second)
	default:
		err = fmt.Errorf("response had neither expires_on nor expires_in")
	}
	if err != nil {
		return nil, rterrors.NewAuthError("app registration response had invalid expiry", rterrors.WithCause(err))
	}

	return &Token{Resource: resource, Value: tr.AccessToken, Expires: expires}, nil
}
