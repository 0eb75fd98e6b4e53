package keyproxy

import (
	"regexp"
	"strconv"
)

// UnknownSecretType is the placeholder type of listed secrets; the backend
// does not report one.
const UnknownSecretType = "Unknown"

// SecretTypes are the kinds offered when creating a secret.
var SecretTypes = []string{
	"API Key",
	"Encryption Key",
	"Password",
	"Database Credential",
	"Certificate",
	"Token",
}

// SecretRecord is a secret as stored remotely. SecretName is unique per
// account email.
type SecretRecord struct {
	SecretName  string `json:"secret_name"`
	SecretValue string `json:"secret_value"`
	CreatedTime string `json:"created_time"`
}

// SecretView is a display-ready secret. ID is the 1-based position in the
// list it came from and means nothing across fetches.
type SecretView struct {
	ID        string
	Name      string
	Type      string
	Value     string
	CreatedAt string
	UpdatedAt string
}

func toSecretViews(recs []SecretRecord) []SecretView {
	out := make([]SecretView, 0, len(recs))
	for i, r := range recs {
		out = append(out, SecretView{
			ID:    strconv.Itoa(i + 1),
			Name:  r.SecretName,
			Type:  UnknownSecretType,
			Value: r.SecretValue,
			// only one timestamp is reported remotely
			CreatedAt: r.CreatedTime,
			UpdatedAt: r.CreatedTime,
		})
	}
	return out
}

var unsafeSecretChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeSecret removes every character outside [A-Za-z0-9_-].
func SanitizeSecret(s string) string {
	return unsafeSecretChars.ReplaceAllString(s, "")
}
