package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignature_Roundtrip(t *testing.T) {
	sig := Signature("whsec_test", "gwordr_000001", "pay_001")

	assert.Len(t, sig, 64)
	assert.True(t, VerifySignature("whsec_test", "gwordr_000001", "pay_001", sig))
}

func TestVerifySignature_Rejects(t *testing.T) {
	sig := Signature("whsec_test", "gwordr_000001", "pay_001")

	assert.False(t, VerifySignature("whsec_test", "gwordr_000001", "pay_002", sig), "different payment id")
	assert.False(t, VerifySignature("whsec_test", "gwordr_000002", "pay_001", sig), "different gateway order")
	assert.False(t, VerifySignature("whsec_other", "gwordr_000001", "pay_001", sig), "different secret")
	assert.False(t, VerifySignature("whsec_test", "gwordr_000001", "pay_001", ""), "empty signature")
}

func TestSignature_Deterministic(t *testing.T) {
	first := Signature("whsec_test", "gwordr_000001", "pay_001")
	second := Signature("whsec_test", "gwordr_000001", "pay_001")
	assert.Equal(t, first, second)
}
