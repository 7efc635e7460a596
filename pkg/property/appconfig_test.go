package property_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faasrt/core/pkg/property"
)

type staticTokenSource struct{}

func (staticTokenSource) GetToken(context.Context, string, string) (string, error) {
	return "tok", nil
}

// TestAppConfigSecretReference is scenario S4: a config-store entry with
// the key-vault-reference content type is followed to the secret uri and
// its value substituted transparently.
func TestAppConfigSecretReference(t *testing.T) {
	secretSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"value":"test_b"}`)
	}))
	defer secretSrv.Close()

	var configSrv *httptest.Server
	configSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"key":"k","content_type":"application/vnd.microsoft.appconfig.keyvaultref+json","value":"{\"uri\":\"%s/secrets/s\"}"}`,
			secretSrv.URL)
	}))
	defer configSrv.Close()

	mgr := property.NewAppConfigPropertyManager("store", "", staticTokenSource{}, property.WithBaseURL(configSrv.URL))
	v, err := mgr.GetProperty(context.Background(), "k", nil)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "test_b", *v)
}

// TestAppConfigPropertyManagerPlainValue covers the normal-KVP path: a
// content type that is neither a feature flag nor a secret reference
// returns Value verbatim.
func TestAppConfigPropertyManagerPlainValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"key":"k","content_type":"","value":"plain"}`)
	}))
	defer srv.Close()

	mgr := property.NewAppConfigPropertyManager("store", "", staticTokenSource{}, property.WithBaseURL(srv.URL))
	v, err := mgr.GetProperty(context.Background(), "k", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain", *v)
}

// TestAppConfigPropertyManagerMissingKeyFallsBack covers the documented
// 404-falls-back-to-another-source behavior (spec §4.1).
func TestAppConfigPropertyManagerMissingKeyFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	fallbackVal := "from-fallback"
	fallback := fallbackSource{value: &fallbackVal}

	mgr := property.NewAppConfigPropertyManager("store", "", staticTokenSource{},
		property.WithBaseURL(srv.URL), property.WithFallback(fallback))

	v, err := mgr.GetProperty(context.Background(), "k", nil)
	require.NoError(t, err)
	assert.Equal(t, "from-fallback", *v)
}

// TestAppConfigPropertyManagerMissingKeyNoFallback covers the no-fallback
// case: a 404 with no fallback configured is a clean miss, not an error.
func TestAppConfigPropertyManagerMissingKeyNoFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	mgr := property.NewAppConfigPropertyManager("store", "", staticTokenSource{}, property.WithBaseURL(srv.URL))
	def := "default-value"
	v, err := mgr.GetProperty(context.Background(), "k", &def)
	require.NoError(t, err)
	assert.Equal(t, "default-value", *v)
}

type fallbackSource struct {
	value *string
}

func (f fallbackSource) Lookup(context.Context, string) (*string, error) {
	return f.value, nil
}
