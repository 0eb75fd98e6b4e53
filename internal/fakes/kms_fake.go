package fakes

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
)

// KMS is a test double for keyproxy.KMSAPI.
// ListKeys returns Keys (or Err) and records the inputs it saw.
type KMS struct {
	mu sync.Mutex

	Keys []string
	Err  error // if set, ListKeys returns this error

	Calls     int
	LastInput *kms.ListKeysInput
}

func (f *KMS) ListKeys(_ context.Context, in *kms.ListKeysInput, _ ...func(*kms.Options)) (*kms.ListKeysOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls++
	f.LastInput = in
	if f.Err != nil {
		return nil, f.Err
	}

	out := &kms.ListKeysOutput{}
	for i := range f.Keys {
		if in != nil && in.Limit != nil && int32(i) >= *in.Limit {
			break
		}
		id := f.Keys[i]
		out.Keys = append(out.Keys, types.KeyListEntry{KeyId: &id})
	}
	return out, nil
}

func (f *KMS) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls
}
