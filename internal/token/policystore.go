package token

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zvault/zvault/internal/apperr"
	"github.com/zvault/zvault/internal/barrier"
)

const policyPrefix = "core/policies/"

// PolicyStore persists named policies through the barrier.
type PolicyStore struct {
	b *barrier.Barrier
}

// NewPolicyStore wraps b. It does not implicitly create the built-in
// policies; callers ask for RootPolicy/DefaultPolicy directly when needed
// since those are never looked up from storage.
func NewPolicyStore(b *barrier.Barrier) *PolicyStore {
	return &PolicyStore{b: b}
}

// Put persists a policy. root and default are rejected.
func (s *PolicyStore) Put(ctx context.Context, p Policy) error {
	if IsBuiltin(p.Name) {
		return errBuiltinPolicy(p.Name)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("token: failed to marshal policy %q: %w", p.Name, err)
	}
	return s.b.EncryptPut(ctx, policyPrefix+p.Name, data, nil)
}

// Get returns the built-in policies without touching storage, and
// delegates to the barrier for everything else.
func (s *PolicyStore) Get(ctx context.Context, name string) (Policy, error) {
	switch name {
	case RootPolicyName:
		return RootPolicy(), nil
	case DefaultPolicyName:
		return DefaultPolicy(), nil
	}
	data, ok, err := s.b.DecryptGet(ctx, policyPrefix+name, nil)
	if err != nil {
		return Policy{}, err
	}
	if !ok {
		return Policy{}, apperr.New(apperr.KindNotFound, "policy %q not found", name)
	}
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("token: corrupt policy record %q: %w", name, err)
	}
	return p, nil
}

// GetAll resolves a list of policy names into Policy values, in the same
// order, failing if any name does not exist.
func (s *PolicyStore) GetAll(ctx context.Context, names []string) ([]Policy, error) {
	policies := make([]Policy, 0, len(names))
	for _, name := range names {
		p, err := s.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, nil
}

// Delete removes a policy. root and default are rejected.
func (s *PolicyStore) Delete(ctx context.Context, name string) error {
	if IsBuiltin(name) {
		return errBuiltinPolicy(name)
	}
	return s.b.Delete(ctx, policyPrefix+name)
}
