package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"gato-backoffice/pkg/config"
	"gato-backoffice/pkg/httpapi"
	"gato-backoffice/pkg/identity"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// API wraps a gin router mounted the way cmd/backoffice mounts it, with a
// verifier that can mint tokens for test actors.
type API struct {
	Router   *httpapi.Router
	Verifier *identity.Verifier
}

func NewAPI(t *testing.T) *API {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.Session.Secret = "test-secret"
	v := identity.NewVerifier(cfg)
	return &API{Router: httpapi.Mount(gin.New(), v), Verifier: v}
}

// Do sends body as JSON, or as is when it is an io.Reader, on behalf of
// actor. A zero actor sends no token.
func (a *API) Do(t *testing.T, actor identity.Actor, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case io.Reader:
		reader = b
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if _, ok := body.(io.Reader); !ok && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	if !actor.Anonymous() {
		token, err := a.Verifier.Sign(actor, time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.Router.Engine.ServeHTTP(w, req)
	return w
}

// ErrorCode extracts error.code from the JSON error envelope.
func ErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

