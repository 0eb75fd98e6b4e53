package keyproxy

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
)

// Provider selects the KMS backing a customer account.
type Provider string

const (
	ProviderAzure Provider = "azure"
	ProviderAWS   Provider = "aws"
	ProviderGCP   Provider = "gcp"
	ProviderHSM   Provider = "hsm"
)

// DefaultProvider is preselected on the signup form.
const DefaultProvider = ProviderAzure

// Providers lists the selectable providers in form order.
var Providers = []Provider{ProviderAzure, ProviderAWS, ProviderGCP, ProviderHSM}

func (p Provider) Valid() bool {
	switch p {
	case ProviderAzure, ProviderAWS, ProviderGCP, ProviderHSM:
		return true
	}
	return false
}

func ParseProvider(s string) (Provider, error) {
	p := Provider(s)
	if !p.Valid() {
		return "", &ValidationError{Message: fmt.Sprintf("unknown kms provider %q", s)}
	}
	return p, nil
}

// Credential field names, as sent on the wire.
const (
	FieldAccessKeyID        = "access_key_id"
	FieldSecretAccessKey    = "secret_access_key"
	FieldRegion             = "region"
	FieldServiceAccountJSON = "service_account_json"
	FieldHSMURL             = "hsm_url"
	FieldClientCertificate  = "client_certificate"
	FieldPrivateKey         = "private_key"
	FieldAuthToken          = "auth_token"
)

type AWSCredentials struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Region          string `json:"region"`
}

type GCPCredentials struct {
	// ServiceAccountJSON is the base64 encoding of the key file's text.
	ServiceAccountJSON string `json:"service_account_json"`
}

type HSMCredentials struct {
	HSMURL            string `json:"hsm_url"`
	ClientCertificate string `json:"client_certificate"`
	PrivateKey        string `json:"private_key"`
	AuthToken         string `json:"auth_token"`
}

// CredentialPayload is the provider-tagged credential object embedded in a
// signup request. Only the variant named by Provider is populated.
type CredentialPayload struct {
	Provider Provider
	AWS      *AWSCredentials
	GCP      *GCPCredentials
	HSM      *HSMCredentials
}

// MarshalJSON emits the selected variant's object alone.
func (p CredentialPayload) MarshalJSON() ([]byte, error) {
	switch p.Provider {
	case ProviderAWS:
		return json.Marshal(p.AWS)
	case ProviderGCP:
		return json.Marshal(p.GCP)
	case ProviderHSM:
		return json.Marshal(p.HSM)
	}
	return []byte("null"), nil
}

// Fields flattens the populated variant into wire field names.
func (p CredentialPayload) Fields() map[string]string {
	out := map[string]string{}
	switch {
	case p.Provider == ProviderAWS && p.AWS != nil:
		out[FieldAccessKeyID] = p.AWS.AccessKeyID
		out[FieldSecretAccessKey] = p.AWS.SecretAccessKey
		out[FieldRegion] = p.AWS.Region
	case p.Provider == ProviderGCP && p.GCP != nil:
		out[FieldServiceAccountJSON] = p.GCP.ServiceAccountJSON
	case p.Provider == ProviderHSM && p.HSM != nil:
		out[FieldHSMURL] = p.HSM.HSMURL
		out[FieldClientCertificate] = p.HSM.ClientCertificate
		out[FieldPrivateKey] = p.HSM.PrivateKey
		out[FieldAuthToken] = p.HSM.AuthToken
	}
	return out
}

// CredentialBuilder accumulates partial credentials for every provider.
// It is a value: each edit returns a new builder and leaves the receiver as
// it was, so partial state never leaks between providers.
type CredentialBuilder struct {
	aws AWSCredentials
	gcp GCPCredentials
	hsm HSMCredentials

	awsSet, gcpSet, hsmSet bool
}

func NewCredentialBuilder() CredentialBuilder { return CredentialBuilder{} }

// Set merges a single field into provider p's partial object.
func (b CredentialBuilder) Set(p Provider, field, value string) (CredentialBuilder, error) {
	switch p {
	case ProviderAWS:
		switch field {
		case FieldAccessKeyID:
			b.aws.AccessKeyID = value
		case FieldSecretAccessKey:
			b.aws.SecretAccessKey = value
		case FieldRegion:
			b.aws.Region = value
		default:
			return b, unknownField(p, field)
		}
		b.awsSet = true
	case ProviderGCP:
		if field != FieldServiceAccountJSON {
			return b, unknownField(p, field)
		}
		b.gcp.ServiceAccountJSON = value
		b.gcpSet = true
	case ProviderHSM:
		switch field {
		case FieldHSMURL:
			b.hsm.HSMURL = value
		case FieldClientCertificate:
			b.hsm.ClientCertificate = value
		case FieldPrivateKey:
			b.hsm.PrivateKey = value
		case FieldAuthToken:
			b.hsm.AuthToken = value
		default:
			return b, unknownField(p, field)
		}
		b.hsmSet = true
	default:
		return b, unknownField(p, field)
	}
	return b, nil
}

// WithServiceAccount stores the base64 of the text read from r as the GCP
// service account. A nil reader means no file was chosen and is a no-op.
func (b CredentialBuilder) WithServiceAccount(r io.Reader) (CredentialBuilder, error) {
	if r == nil {
		return b, nil
	}
	encoded, err := encodeServiceAccount(r)
	if err != nil {
		return b, err
	}
	return b.Set(ProviderGCP, FieldServiceAccountJSON, encoded)
}

func encodeServiceAccount(r io.Reader) (string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read service account file: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Payload returns provider p's object. ok is false when nothing was entered
// for p, or p has no structured credentials (azure).
func (b CredentialBuilder) Payload(p Provider) (payload CredentialPayload, ok bool) {
	payload.Provider = p
	switch p {
	case ProviderAWS:
		if !b.awsSet {
			return payload, false
		}
		aws := b.aws
		payload.AWS = &aws
	case ProviderGCP:
		if !b.gcpSet {
			return payload, false
		}
		gcp := b.gcp
		payload.GCP = &gcp
	case ProviderHSM:
		if !b.hsmSet {
			return payload, false
		}
		hsm := b.hsm
		payload.HSM = &hsm
	default:
		return payload, false
	}
	return payload, true
}

func unknownField(p Provider, field string) error {
	return &ValidationError{Message: fmt.Sprintf("unknown credential field %q for provider %q", field, p)}
}
