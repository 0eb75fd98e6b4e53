package keyproxy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SSMRefPrefix marks a value that names an SSM parameter instead of holding
// the value itself, e.g. "ssm:/team/aws/secret-access-key".
const SSMRefPrefix = "ssm:"

type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMProvider reads decrypted parameters with a small TTL cache in front.
type SSMProvider struct {
	ssm   SSMAPI
	cache *TTLCache[string]
}

func NewSSMProvider(c SSMAPI, cacheSize int, ttl time.Duration) *SSMProvider {
	if c == nil {
		panic("ssm client is required")
	}
	return &SSMProvider{ssm: c, cache: NewTTLCache[string](cacheSize, ttl)}
}

// Get returns the decrypted value of parameter name.
func (p *SSMProvider) Get(ctx context.Context, name string) (string, error) {
	if v, ok := p.cache.Get(name); ok {
		return v, nil
	}
	out, err := p.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("SSM GetParameter %s: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("SSM GetParameter %s: empty parameter", name)
	}
	v := aws.ToString(out.Parameter.Value)
	p.cache.Set(name, v)
	return v, nil
}

// IsSSMRef reports whether v is an SSM parameter reference.
func IsSSMRef(v string) bool { return strings.HasPrefix(v, SSMRefPrefix) }

// Resolver expands SSM references in user-supplied values. A Resolver
// without a provider passes plain values through and rejects references.
type Resolver struct {
	ssm *SSMProvider
}

func NewResolver(p *SSMProvider) *Resolver { return &Resolver{ssm: p} }

// Resolve returns v, or the parameter value when v is an SSM reference.
func (r *Resolver) Resolve(ctx context.Context, v string) (string, error) {
	if !IsSSMRef(v) {
		return v, nil
	}
	name := strings.TrimPrefix(v, SSMRefPrefix)
	if name == "" {
		return "", &ValidationError{Message: "empty ssm parameter reference"}
	}
	if r == nil || r.ssm == nil {
		return "", errors.New("ssm references need aws access; none configured")
	}
	return r.ssm.Get(ctx, name)
}
