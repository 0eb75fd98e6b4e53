package keyproxy

import (
	"fmt"
	"slices"
)

type EncryptionAlgorithm string

const (
	AlgAES256GCM        EncryptionAlgorithm = "AES-256-GCM"
	AlgAES256CBC        EncryptionAlgorithm = "AES-256-CBC"
	AlgRSA2048          EncryptionAlgorithm = "RSA-2048"
	AlgRSA4096          EncryptionAlgorithm = "RSA-4096"
	AlgChaCha20Poly1305 EncryptionAlgorithm = "ChaCha20-Poly1305"
	AlgED25519          EncryptionAlgorithm = "ED25519"
)

var EncryptionAlgorithms = []EncryptionAlgorithm{
	AlgAES256GCM, AlgAES256CBC, AlgRSA2048, AlgRSA4096, AlgChaCha20Poly1305, AlgED25519,
}

type AccessControl string

const (
	AccessRBAC AccessControl = "rbac"
	AccessMFA  AccessControl = "mfa"
)

type SecurityPreferences struct {
	EncryptionAlgorithm EncryptionAlgorithm `json:"encryption_algorithm"`
	AccessControl       AccessControl       `json:"access_control"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupRequest onboards a company together with its KMS credentials.
// KMSCredentials is nil when the selected provider captured nothing.
type SignupRequest struct {
	CompanyName         string              `json:"company_name"`
	ContactName         string              `json:"contact_name"`
	PhoneNumber         string              `json:"phone_number"`
	Email               string              `json:"email"`
	Password            string              `json:"password"`
	ConfirmPassword     string              `json:"confirm_password"`
	KMSSelection        Provider            `json:"kms_selection"`
	SecurityPreferences SecurityPreferences `json:"security_preferences"`
	KMSCredentials      *CredentialPayload  `json:"kms_credentials,omitempty"`
}

// Validate runs the local checks. The password confirmation is checked
// first so a mismatch always reports ErrPasswordMismatch.
func (r SignupRequest) Validate() error {
	if r.Password != r.ConfirmPassword {
		return ErrPasswordMismatch
	}
	if !r.KMSSelection.Valid() {
		return &ValidationError{Message: fmt.Sprintf("unknown kms provider %q", r.KMSSelection)}
	}
	if !slices.Contains(EncryptionAlgorithms, r.SecurityPreferences.EncryptionAlgorithm) {
		return &ValidationError{Message: "Select an encryption algorithm"}
	}
	switch r.SecurityPreferences.AccessControl {
	case AccessRBAC, AccessMFA:
	default:
		return &ValidationError{Message: fmt.Sprintf("unknown access control %q", r.SecurityPreferences.AccessControl)}
	}
	if r.KMSCredentials != nil && r.KMSCredentials.Provider != r.KMSSelection {
		return &ValidationError{Message: "kms credentials do not match the selected provider"}
	}
	return nil
}

// KMSConfig is the account's stored KMS configuration as returned by
// GET /get-kms.
type KMSConfig struct {
	Provider    string            `json:"kms_provider"`
	Credentials map[string]string `json:"kms_credentials"`
}

// AWS extracts AWS credentials, accepting both the signup field names and the
// aws_access_key / aws_secret_key names the backend stores.
func (k KMSConfig) AWS() (AWSCredentials, bool) {
	pick := func(keys ...string) string {
		for _, key := range keys {
			if v := k.Credentials[key]; v != "" {
				return v
			}
		}
		return ""
	}
	c := AWSCredentials{
		AccessKeyID:     pick(FieldAccessKeyID, "aws_access_key"),
		SecretAccessKey: pick(FieldSecretAccessKey, "aws_secret_key"),
		Region:          pick(FieldRegion, "aws_region"),
	}
	return c, c.AccessKeyID != "" && c.SecretAccessKey != ""
}

type loginResponse struct {
	Token string `json:"token"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type createSecretRequest struct {
	Email       string `json:"email"`
	SecretName  string `json:"secret_name"`
	SecretValue string `json:"secret_value"`
}

type fetchSecretRequest struct {
	Email      string `json:"email"`
	SecretName string `json:"secretName"`
}

type fetchSecretResponse struct {
	Secret *string `json:"secret"`
}

type listSecretsResponse struct {
	Secrets []SecretRecord `json:"secrets"`
}
