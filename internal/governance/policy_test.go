package governance

import (
	"context"
	"strings"
	"testing"
)

func TestDefaultPolicyEngine_Evaluate(t *testing.T) {
	pe := NewDefaultPolicyEngine()
	ctx := context.Background()

	// Test Allow (Default)
	req1 := Request{Capability: "search_web"}
	res1, err := pe.Evaluate(ctx, req1)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res1.Effect != EffectAllow {
		t.Errorf("Expected EffectAllow, got %s", res1.Effect)
	}

	// Test Deny
	pe.DenyCapability("share_file")
	req2 := Request{Capability: "share_file"}
	res2, err := pe.Evaluate(ctx, req2)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res2.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny, got %s", res2.Effect)
	}
}

func TestDefaultPolicyEngine_DenyArguments(t *testing.T) {
	pe := NewDefaultPolicyEngine()
	if err := pe.DenyArguments(`(?i)internal\.corp`); err != nil {
		t.Fatal(err)
	}

	res, err := pe.Evaluate(context.Background(), Request{
		Capability: "extract_webpage",
		Arguments:  `{"url":"https://internal.corp/secrets"}`,
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny, got %s", res.Effect)
	}
}

func TestAsPolicyFunc(t *testing.T) {
	pe := NewDefaultPolicyEngine()
	pe.DenyCapability("notify_chat")
	check := AsPolicyFunc(pe, nil)

	if err := check(context.Background(), "search_web", map[string]any{"query": "f1"}); err != nil {
		t.Errorf("allowed capability should pass: %v", err)
	}

	err := check(context.Background(), "notify_chat", map[string]any{"chat_id": "1", "text": "hi"})
	if err == nil || !strings.Contains(err.Error(), "denied by policy") {
		t.Errorf("expected policy denial, got %v", err)
	}
}
