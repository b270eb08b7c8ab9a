// Package contract is a test harness every verification provider must pass.
package contract

import (
	"context"
	"slices"
	"testing"

	"rentguard/internal/proof"
	"rentguard/internal/verification/providers"
)

// ContractTest is one request/expectation pair.
type ContractTest struct {
	Name       string
	Request    providers.Request
	WantPassed bool
	// ValidateFunc runs after the shared checks.
	ValidateFunc func(res *providers.Result) error
}

// ContractSuite runs the shared checks against one provider. Verifier must
// trust the provider's signing key.
type ContractSuite struct {
	Provider providers.Provider
	Verifier proof.Verifier
	Tests    []ContractTest
}

func (s *ContractSuite) Run(t *testing.T) {
	t.Helper()
	for _, test := range s.Tests {
		t.Run(test.Name, func(t *testing.T) {
			res, err := s.Provider.Verify(context.Background(), test.Request)
			if err != nil {
				t.Fatalf("verify failed: %v", err)
			}
			if err := providers.CheckResult(s.Provider.Kind(), res); err != nil {
				t.Fatalf("result shape: %v", err)
			}
			if res.ProviderID != s.Provider.ID() {
				t.Errorf("expected provider ID %s, got %s", s.Provider.ID(), res.ProviderID)
			}
			if res.CheckedAt.IsZero() {
				t.Error("CheckedAt not set")
			}
			if res.Passed != test.WantPassed {
				t.Fatalf("passed = %v, want %v", res.Passed, test.WantPassed)
			}
			if res.Passed {
				s.checkProof(t, test.Request, res.Proof)
			}
			if test.ValidateFunc != nil {
				if err := test.ValidateFunc(res); err != nil {
					t.Errorf("custom validation failed: %v", err)
				}
			}
		})
	}
}

func (s *ContractSuite) checkProof(t *testing.T, req providers.Request, p *proof.Proof) {
	t.Helper()
	if p.SubjectHash != req.SubjectHash() {
		t.Error("proof not bound to request subject")
	}
	if !p.ValidUntil.After(p.IssuedAt) {
		t.Error("proof validity window empty")
	}
	if err := s.Verifier.Verify(p.Issuer, p.Digest(), p.Signature); err != nil {
		t.Errorf("proof signature: %v", err)
	}
	for _, claim := range s.Provider.Capabilities().Claims {
		if claim == proof.ClaimDisputeID {
			continue
		}
		if _, ok := p.Claim(claim); !ok {
			t.Errorf("proof missing declared claim %q", claim)
		}
	}
}

// CapabilityTest checks the declared capabilities.
type CapabilityTest struct {
	Provider providers.Provider
}

func (ct *CapabilityTest) Run(t *testing.T) {
	t.Helper()
	caps := ct.Provider.Capabilities()
	if caps.Protocol == "" {
		t.Error("protocol not set")
	}
	if caps.Kind != ct.Provider.Kind() {
		t.Errorf("capabilities kind %s, provider kind %s", caps.Kind, ct.Provider.Kind())
	}
	if caps.Version == "" {
		t.Error("version not set")
	}
	if len(caps.Claims) == 0 {
		t.Error("no claims declared")
	}
	if slices.Contains(caps.Claims, "") {
		t.Error("empty claim name declared")
	}
}

// ErrorContractTest checks that failures follow the error taxonomy.
type ErrorContractTest struct {
	Name          string
	Provider      providers.Provider
	Request       providers.Request
	ExpectedError providers.ErrorCategory
	ExpectedRetry bool
}

func (ect *ErrorContractTest) Run(t *testing.T) {
	t.Helper()
	_, err := ect.Provider.Verify(context.Background(), ect.Request)
	if err == nil {
		t.Fatal("expected error but got none")
	}
	if category := providers.GetCategory(err); category != ect.ExpectedError {
		t.Errorf("expected error category %s, got %s", ect.ExpectedError, category)
	}
	if retry := providers.IsRetryable(err); retry != ect.ExpectedRetry {
		t.Errorf("expected retryable=%v, got %v", ect.ExpectedRetry, retry)
	}
}
