package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grasp-labs/ds-keyproxy-go-sdk/internal/cli"
	"github.com/grasp-labs/ds-keyproxy-go-sdk/internal/fakes"
	"github.com/grasp-labs/ds-keyproxy-go-sdk/keyproxy"
)

type harness struct {
	t       *testing.T
	backend *fakes.Backend
	dir     string
	opts    []cli.Option
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("KEYPROXY_CONFIG", "")
	t.Setenv("KEYPROXY_SESSION_STORE", "file")
	t.Setenv("KEYPROXY_SESSION_PATH", filepath.Join(dir, "session.yaml"))
	t.Setenv("KEYPROXY_EMAIL", "a@b.com")

	b := fakes.NewBackend(t)
	b.AddUser("a@b.com", "pw")
	b.IssuedToken = "tok123"
	return &harness{t: t, backend: b, dir: dir}
}

func (h *harness) run(stdin string, args ...string) (string, string, int) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	full := append([]string{"--server", h.backend.URL, "--config", filepath.Join(h.dir, "absent.yaml")}, args...)
	code := cli.Execute(context.Background(), full, strings.NewReader(stdin), &out, &errOut, h.opts...)
	return out.String(), errOut.String(), code
}

func (h *harness) login() {
	h.t.Helper()
	_, stderr, code := h.run("pw\n", "login", "--password-stdin")
	require.Equal(h.t, 0, code, stderr)
}

func TestLogin_StoresToken(t *testing.T) {
	h := newHarness(t)

	out, stderr, code := h.run("pw\n", "login", "--password-stdin")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "Logged in as a@b.com")

	raw, err := os.ReadFile(filepath.Join(h.dir, "session.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "tok123")

	out, _, code = h.run("", "status")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "authenticated: true")
	assert.Contains(t, out, "view:          /add-secret")
}

func TestLogin_WrongPassword(t *testing.T) {
	h := newHarness(t)

	_, stderr, code := h.run("nope\n", "login", "--password-stdin")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Error: Invalid credentials")

	out, _, _ := h.run("", "status")
	assert.Contains(t, out, "authenticated: false")
	assert.Contains(t, out, "view:          /auth")
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.login()

	out, _, code := h.run("", "logout")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Logged out")

	out, _, _ = h.run("", "status")
	assert.Contains(t, out, "authenticated: false")
}

func TestSecret_RequiresLogin(t *testing.T) {
	h := newHarness(t)

	for _, args := range [][]string{
		{"secret", "create", "x", "--value", "y"},
		{"secret", "list"},
		{"secret", "get", "x"},
		{"kms", "show"},
	} {
		_, stderr, code := h.run("", args...)
		assert.Equal(t, 1, code, args)
		assert.Contains(t, stderr, "not logged in", args)
	}
	assert.Zero(t, h.backend.TotalCalls())
}

func TestSecret_CreateListGet(t *testing.T) {
	h := newHarness(t)
	h.login()

	out, stderr, code := h.run("hunter2!\n", "secret", "create", "db-password", "--value-stdin")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, `Secret "db-password" stored`)
	assert.Equal(t, "Bearer tok123", h.backend.LastHeader("POST /create-secret").Get("Authorization"))
	assert.JSONEq(t, `{"email":"a@b.com","secret_name":"db-password","secret_value":"hunter2!"}`,
		string(h.backend.LastBody("POST /create-secret")))

	out, stderr, code = h.run("", "secret", "list")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "db-password")
	assert.Contains(t, out, keyproxy.UnknownSecretType)
	assert.NotContains(t, out, "hunter2")

	out, stderr, code = h.run("", "secret", "get", "db-password")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "hunter2\n", out)
}

func TestSecret_ListEmpty(t *testing.T) {
	h := newHarness(t)
	h.login()

	out, _, code := h.run("", "secret", "list", "--email", "nobody@b.com")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "No secrets stored")
}

func TestSecret_GetMissing(t *testing.T) {
	h := newHarness(t)
	h.login()

	_, stderr, code := h.run("", "secret", "get", "nope")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Secret not found")
}

func TestSecret_CreateFromSSM(t *testing.T) {
	h := newHarness(t)
	ssmFake := &fakes.SSM{Params: map[string]string{"/acme/api-key": "from-ssm"}}
	h.opts = []cli.Option{cli.WithSSMClient(ssmFake)}
	h.login()

	_, stderr, code := h.run("", "secret", "create", "api-key", "--value", "ssm:/acme/api-key")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, string(h.backend.LastBody("POST /create-secret")), `"secret_value":"from-ssm"`)
	assert.Equal(t, 1, ssmFake.Calls)
}

func TestSignup_AWSWithSSMSecret(t *testing.T) {
	h := newHarness(t)
	ssmFake := &fakes.SSM{Params: map[string]string{"/acme/kms/secret": "shh"}}
	h.opts = []cli.Option{cli.WithSSMClient(ssmFake)}

	out, stderr, code := h.run("pw2\npw2\n", "signup", "--password-stdin",
		"--company", "Acme", "--contact", "Ada", "--phone", "+4712345678",
		"--email", "ada@acme.io", "--kms", "aws",
		"--aws-access-key-id", "AKIA", "--aws-secret-access-key", "ssm:/acme/kms/secret",
		"--aws-region", "eu-north-1", "--encryption-algorithm", "AES-256-GCM")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "Account created for ada@acme.io")

	var sent map[string]any
	require.NoError(t, json.Unmarshal(h.backend.LastBody("POST /signup"), &sent))
	assert.Equal(t, map[string]any{
		"access_key_id":     "AKIA",
		"secret_access_key": "shh",
		"region":            "eu-north-1",
	}, sent["kms_credentials"])
	assert.Equal(t, "rbac", sent["security_preferences"].(map[string]any)["access_control"])
}

func TestSignup_GCPServiceAccountFile(t *testing.T) {
	h := newHarness(t)
	keyFile := filepath.Join(h.dir, "sa.json")
	require.NoError(t, os.WriteFile(keyFile, []byte(`{"type":"service_account"}`), 0o600))

	_, stderr, code := h.run("pw\npw\n", "signup", "--password-stdin", "--email", "g@acme.io",
		"--kms", "gcp", "--gcp-service-account", keyFile, "--encryption-algorithm", "RSA-4096", "--access-control", "mfa")
	require.Equal(t, 0, code, stderr)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(h.backend.LastBody("POST /signup"), &sent))
	assert.Equal(t, map[string]any{"service_account_json": "eyJ0eXBlIjoic2VydmljZV9hY2NvdW50In0="}, sent["kms_credentials"])
}

func TestSignup_PasswordMismatch(t *testing.T) {
	h := newHarness(t)

	_, stderr, code := h.run("one\ntwo\n", "signup", "--password-stdin", "--email", "x@acme.io",
		"--encryption-algorithm", "AES-256-GCM")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Passwords do not match")
	assert.Zero(t, h.backend.TotalCalls())
}

func TestSignup_CredentialForOtherProvider(t *testing.T) {
	h := newHarness(t)

	_, stderr, code := h.run("pw\npw\n", "signup", "--password-stdin", "--email", "x@acme.io",
		"--kms", "hsm", "--aws-access-key-id", "AKIA", "--encryption-algorithm", "AES-256-GCM")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown credential field")
	assert.Zero(t, h.backend.TotalCalls())
}

func TestKMS_ShowAndStatus(t *testing.T) {
	h := newHarness(t)
	h.backend.KMS["a@b.com"] = keyproxy.KMSConfig{
		Provider: "aws",
		Credentials: map[string]string{
			"aws_access_key": "AKIAEXAMPLE",
			"aws_secret_key": "supersecretvalue",
			"aws_region":     "eu-north-1",
		},
	}
	kmsFake := &fakes.KMS{Keys: []string{"k1"}}
	var gotCreds keyproxy.AWSCredentials
	h.opts = []cli.Option{cli.WithKMSFactory(func(_ context.Context, c keyproxy.AWSCredentials) (keyproxy.KMSAPI, error) {
		gotCreds = c
		return kmsFake, nil
	})}
	h.login()

	out, stderr, code := h.run("", "kms", "show")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "provider: aws")
	assert.Contains(t, out, "aws_secret_key")
	assert.NotContains(t, out, "supersecretvalue")
	assert.Contains(t, out, "alue")

	out, stderr, code = h.run("", "kms", "status")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "kms: connected")
	assert.Equal(t, "eu-north-1", gotCreds.Region)
	assert.Equal(t, 1, kmsFake.CallCount())
	assert.Equal(t, int32(1), *kmsFake.LastInput.Limit)
}

func TestKMS_StatusFailures(t *testing.T) {
	h := newHarness(t)
	h.backend.KMS["a@b.com"] = keyproxy.KMSConfig{Provider: "azure", Credentials: map[string]string{}}
	h.login()

	_, stderr, code := h.run("", "kms", "status")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "not supported")

	h.backend.KMS["a@b.com"] = keyproxy.KMSConfig{
		Provider:    "aws",
		Credentials: map[string]string{"access_key_id": "AKIA", "secret_access_key": "shh", "region": "us-east-1"},
	}
	h.opts = []cli.Option{cli.WithKMSFactory(func(context.Context, keyproxy.AWSCredentials) (keyproxy.KMSAPI, error) {
		return &fakes.KMS{Err: errors.New("UnrecognizedClientException")}, nil
	})}
	out, stderr, code := h.run("", "kms", "status")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "kms: not_connected")
	assert.Contains(t, stderr, "UnrecognizedClientException")
}

func TestBadConfig(t *testing.T) {
	h := newHarness(t)
	_, stderr, code := h.run("", "--log-level", "loud", "status")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid log level")
}

func TestSecret_GetSilentNeedsClipboard(t *testing.T) {
	h := newHarness(t)
	h.login()

	_, stderr, code := h.run("", "secret", "get", "x", "--silent")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "--silent requires --clipboard")
	assert.Zero(t, h.backend.Calls("POST /get-secret"))
}

func TestFlagsOverrideInvalidEnv(t *testing.T) {
	h := newHarness(t)
	t.Setenv("KEYPROXY_LOG_LEVEL", "loud")
	t.Setenv("KEYPROXY_BASE_URL", "ftp://nowhere")

	out, stderr, code := h.run("", "--log-level", "warn", "status")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "server:        "+h.backend.URL)
}

func TestKMS_ShowMasksMultiByteValues(t *testing.T) {
	h := newHarness(t)
	h.backend.KMS["a@b.com"] = keyproxy.KMSConfig{
		Provider:    "hsm",
		Credentials: map[string]string{"auth_token": "ключ-секрет"},
	}
	h.login()

	out, stderr, code := h.run("", "kms", "show")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "*******крет")
	assert.NotContains(t, out, "ключ")
}
