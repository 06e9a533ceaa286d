package webhook

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	body := []byte(`{"trigger":"bot.state_change"}`)
	sig := Sign("top-secret", body)

	if !Verify("top-secret", body, sig) {
		t.Fatal("expected signature to verify with the correct secret")
	}
	if Verify("wrong-secret", body, sig) {
		t.Fatal("expected signature to fail verification with the wrong secret")
	}
	if Verify("top-secret", []byte(`{"trigger":"tampered"}`), sig) {
		t.Fatal("expected signature to fail verification against a tampered body")
	}
}
