package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"golang.org/x/time/rate"

	"github.com/faasrt/core/pkg/rterrors"
)

const defaultFederationEndpoint = "https://signin.aws.amazon.com/federation"

// federationSession is the shape the AWS federation endpoint's
// getSigninToken action expects for the Session query parameter.
type federationSession struct {
	SessionID    string `json:"sessionId"`
	SessionKey   string `json:"sessionKey"`
	SessionToken string `json:"sessionToken"`
}

type signinTokenResponse struct {
	SigninToken string `json:"SigninToken"`
}

// WorkloadIdentity is a cloud-neutral supplement to ManagedIdentity: it
// acquires tokens through AWS STS's AssumeRoleWithWebIdentity flow, for
// hosts running outside Azure that still want the same resource-scoped
// getToken contract. The "resource" passed to GetToken becomes the STS
// RoleSessionName suffix so a single role can be scoped per caller.
//
// AssumeRoleWithWebIdentity returns a SigV4 credential triple (access
// key, secret key, session token), not a bearer string, so it cannot be
// returned as Token.Value directly: it is exchanged for an opaque
// bearer-style token through the AWS federation endpoint's
// getSigninToken action, the same mechanism used to mint a one-time
// console sign-in URL from temporary credentials.
type WorkloadIdentity struct {
	*Authorization
	roleARN              string
	webIdentityTokenFile string
	sessionNamePrefix    string
	stsClient            *sts.Client
	httpClient           *http.Client
	federationEndpoint   string
	timeout              time.Duration
}

// NewWorkloadIdentity constructs a WorkloadIdentity authorization. region
// and webIdentityTokenFile mirror the AWS_REGION/
// AWS_WEB_IDENTITY_TOKEN_FILE conventions; a blank tokenFile falls back
// to that environment variable.
func NewWorkloadIdentity(ctx context.Context, id, roleARN, sessionNamePrefix, region, webIdentityTokenFile string) (*WorkloadIdentity, error) {
	if webIdentityTokenFile == "" {
		webIdentityTokenFile = os.Getenv("AWS_WEB_IDENTITY_TOKEN_FILE")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, rterrors.NewConfigurationError("failed to load aws sdk config for workload identity", rterrors.WithCause(err))
	}

	timeout := 5 * time.Second
	wi := &WorkloadIdentity{
		roleARN:              roleARN,
		webIdentityTokenFile: webIdentityTokenFile,
		sessionNamePrefix:    sessionNamePrefix,
		stsClient:            sts.NewFromConfig(cfg),
		httpClient:           &http.Client{Timeout: timeout},
		federationEndpoint:   defaultFederationEndpoint,
		timeout:              timeout,
	}
	limiter := rate.NewLimiter(rate.Limit(5), 10)
	wi.Authorization = newAuthorization(id, DefaultSkew, limiter, wi.resolve)
	return wi, nil
}

func (wi *WorkloadIdentity) resolve(ctx context.Context, resource string) (*Token, error) {
	tokenBytes, err := os.ReadFile(wi.webIdentityTokenFile)
	if err != nil {
		return nil, rterrors.NewAuthError("failed to read web identity token file", rterrors.WithCause(err))
	}
	webToken := string(tokenBytes)

	sessionName := fmt.Sprintf("%s-%s", wi.sessionNamePrefix, resource)
	if len(sessionName) > 64 {
		sessionName = sessionName[:64]
	}

	out, err := wi.stsClient.AssumeRoleWithWebIdentity(ctx, &sts.AssumeRoleWithWebIdentityInput{
		RoleArn:          &wi.roleARN,
		RoleSessionName:  &sessionName,
		WebIdentityToken: &webToken,
	})
	if err != nil {
		return nil, rterrors.NewAuthError("sts assume role with web identity failed", rterrors.WithCause(err))
	}
	if out.Credentials == nil {
		return nil, rterrors.NewAuthError("sts returned no credentials")
	}

	expires := time.Now().Add(time.Hour)
	if out.Credentials.Expiration != nil {
		expires = *out.Credentials.Expiration
	}

	signinToken, err := wi.exchangeForSigninToken(ctx, out.Credentials)
	if err != nil {
		return nil, err
	}

	return &Token{Resource: resource, Value: signinToken, Expires: expires}, nil
}

// exchangeForSigninToken trades a SigV4 credential triple for the opaque
// bearer-style token the federation endpoint's getSigninToken action
// returns, so Token.Value stays a single string every ResourceAuthorization
// variant's caller can use the same way.
func (wi *WorkloadIdentity) exchangeForSigninToken(ctx context.Context, creds *ststypes.Credentials) (string, error) {
	session := federationSession{
		SessionID:    *creds.AccessKeyId,
		SessionKey:   *creds.SecretAccessKey,
		SessionToken: *creds.SessionToken,
	}
	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return "", rterrors.NewAuthError("failed to encode federation session", rterrors.WithCause(err))
	}

	q := url.Values{}
	q.Set("Action", "getSigninToken")
	q.Set("Session", string(sessionJSON))
	endpoint := wi.federationEndpoint + "?" + q.Encode()

	ctx, cancel := context.WithTimeout(ctx, wi.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", rterrors.NewAuthError("failed to build federation signin request", rterrors.WithCause(err))
	}

	resp, err := wi.httpClient.Do(req)
	if err != nil {
		return "", rterrors.NewAuthError("federation endpoint unreachable", rterrors.WithCause(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", rterrors.NewAuthError(
			fmt.Sprintf("federation endpoint returned %d: %s", resp.StatusCode, string(body)))
	}

	var tr signinTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", rterrors.NewAuthError("failed to decode federation signin response", rterrors.WithCause(err))
	}
	if tr.SigninToken == "" {
		return "", rterrors.NewAuthError("federation endpoint returned an empty signin token")
	}
	return tr.SigninToken, nil
}
