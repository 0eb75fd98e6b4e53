package keyproxy_test

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/grasp-labs/ds-keyproxy-go-sdk/keyproxy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialBuilder_ReadsBackPerProvider(t *testing.T) {
	b := keyproxy.NewCredentialBuilder()
	var err error
	b, err = b.Set(keyproxy.ProviderAWS, keyproxy.FieldAccessKeyID, "AKIA")
	require.NoError(t, err)
	b, err = b.Set(keyproxy.ProviderAWS, keyproxy.FieldSecretAccessKey, "shh")
	require.NoError(t, err)
	b, err = b.Set(keyproxy.ProviderAWS, keyproxy.FieldRegion, "eu-north-1")
	require.NoError(t, err)
	b, err = b.Set(keyproxy.ProviderHSM, keyproxy.FieldHSMURL, "https://hsm.local")
	require.NoError(t, err)

	aws, ok := b.Payload(keyproxy.ProviderAWS)
	require.True(t, ok)
	assert.Equal(t, map[string]string{
		keyproxy.FieldAccessKeyID:     "AKIA",
		keyproxy.FieldSecretAccessKey: "shh",
		keyproxy.FieldRegion:          "eu-north-1",
	}, aws.Fields())

	hsm, ok := b.Payload(keyproxy.ProviderHSM)
	require.True(t, ok)
	assert.Equal(t, "https://hsm.local", hsm.Fields()[keyproxy.FieldHSMURL])
	assert.NotContains(t, hsm.Fields(), keyproxy.FieldAccessKeyID)

	_, ok = b.Payload(keyproxy.ProviderGCP)
	assert.False(t, ok, "nothing entered for gcp")
	_, ok = b.Payload(keyproxy.ProviderAzure)
	assert.False(t, ok, "azure has no structured credentials")
}

func TestCredentialBuilder_IsImmutable(t *testing.T) {
	base := keyproxy.NewCredentialBuilder()
	next, err := base.Set(keyproxy.ProviderAWS, keyproxy.FieldRegion, "us-east-1")
	require.NoError(t, err)

	_, ok := base.Payload(keyproxy.ProviderAWS)
	assert.False(t, ok)
	p, ok := next.Payload(keyproxy.ProviderAWS)
	require.True(t, ok)
	assert.Equal(t, "us-east-1", p.AWS.Region)
}

func TestCredentialBuilder_RejectsUnknownField(t *testing.T) {
	b := keyproxy.NewCredentialBuilder()
	_, err := b.Set(keyproxy.ProviderGCP, keyproxy.FieldRegion, "x")
	var verr *keyproxy.ValidationError
	require.True(t, errors.As(err, &verr))

	_, err = b.Set(keyproxy.ProviderAzure, keyproxy.FieldAccessKeyID, "x")
	require.Error(t, err)
}

func TestCredentialBuilder_ServiceAccount(t *testing.T) {
	const keyFile = `{"type":"service_account","project_id":"demo"}`
	b, err := keyproxy.NewCredentialBuilder().WithServiceAccount(strings.NewReader(keyFile))
	require.NoError(t, err)

	p, ok := b.Payload(keyproxy.ProviderGCP)
	require.True(t, ok)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte(keyFile)), p.GCP.ServiceAccountJSON)

	same, err := b.WithServiceAccount(nil)
	require.NoError(t, err)
	assert.Equal(t, b, same)
}

func TestCredentialPayload_MarshalsSelectedVariantOnly(t *testing.T) {
	b, err := keyproxy.NewCredentialBuilder().Set(keyproxy.ProviderAWS, keyproxy.FieldAccessKeyID, "AKIA")
	require.NoError(t, err)
	b, err = b.Set(keyproxy.ProviderHSM, keyproxy.FieldAuthToken, "tok")
	require.NoError(t, err)

	p, ok := b.Payload(keyproxy.ProviderAWS)
	require.True(t, ok)
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"access_key_id":"AKIA","secret_access_key":"","region":""}`, string(raw))
}

func TestParseProvider(t *testing.T) {
	for _, p := range keyproxy.Providers {
		got, err := keyproxy.ParseProvider(string(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := keyproxy.ParseProvider("vault")
	assert.Error(t, err)
}
