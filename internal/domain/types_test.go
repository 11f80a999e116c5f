package domain

import (
	"strings"
	"testing"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		in   string
		want Action
	}{
		{"create", ActionCreate},
		{"transfer", ActionTransfer},
		{"greeting", ActionGreeting},
		{"other", ActionOther},
		{"", ActionOther},
		{"CREATE", ActionOther},
		{"delete_everything", ActionOther},
	}
	for _, tt := range tests {
		if got := ParseAction(tt.in); got != tt.want {
			t.Errorf("ParseAction(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDispatchable(t *testing.T) {
	if !ActionCreate.Dispatchable() || !ActionTransfer.Dispatchable() {
		t.Error("create and transfer must be dispatchable")
	}
	if ActionGreeting.Dispatchable() || ActionOther.Dispatchable() {
		t.Error("greeting and other must not be dispatchable")
	}
}

func TestActionResult_JSON(t *testing.T) {
	r := &ActionResult{
		Action:    ActionTransfer,
		Kind:      ResultUncertain,
		Status:    "",
		Message:   "timed out",
		AccountID: "acc-1",
	}
	got := r.JSON()
	for _, want := range []string{`"action":"transfer"`, `"kind":"uncertain"`, `"message":"timed out"`} {
		if !strings.Contains(got, want) {
			t.Errorf("JSON() = %s, missing %s", got, want)
		}
	}
	if strings.Contains(got, "status") {
		t.Errorf("JSON() = %s, empty status should be omitted", got)
	}
}

func TestNormalizeBank(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"banka", "banka", true},
		{"BankC", "bankc", true},
		{" bankb ", "bankb", true},
		{"Bank of A", "banka", true},
		{"bank c", "bankc", true},
		{"", "", false},
		{"  ", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeBank(tt.in)
		if ok != tt.wantOK || (ok && got != tt.want) {
			t.Errorf("NormalizeBank(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestWireBankID(t *testing.T) {
	if got := WireBankID(BankC); got != "bankC" {
		t.Errorf("WireBankID(bankc) = %q, want bankC", got)
	}
	if got := WireBankID(BankA); got != "banka" {
		t.Errorf("WireBankID(banka) = %q, want banka", got)
	}
}
