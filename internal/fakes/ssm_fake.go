package fakes

import (
	"context"
	"errors"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// ErrParameterNotFound is returned for names missing from SSM.Params.
var ErrParameterNotFound = errors.New("parameter not found")

// SSM is a test double for keyproxy.SSMAPI. Params maps parameter names to
// their decrypted values; requests without WithDecryption are refused.
type SSM struct {
	mu sync.Mutex

	Params map[string]string
	Err    error

	Calls     int
	Requested []string
}

func (f *SSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	if in == nil || in.Name == nil {
		return nil, errors.New("missing Name")
	}
	if in.WithDecryption == nil || !*in.WithDecryption {
		return nil, errors.New("decryption not requested")
	}

	name := *in.Name
	f.Requested = append(f.Requested, name)
	val, ok := f.Params[name]
	if !ok {
		return nil, ErrParameterNotFound
	}
	return &ssm.GetParameterOutput{
		Parameter: &types.Parameter{Name: &name, Value: &val, Type: types.ParameterTypeSecureString},
	}, nil
}
