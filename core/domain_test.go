package core

import (
	"strings"
	"testing"
	"time"
)

func TestEncodeConferenceName_RoundTripsReservedCharacters(t *testing.T) {
	names := []string{
		"conf_phone_to_phone_1700000000000",
		"sales call #42",
		"a&b=c?d",
		"käll/övning",
		"100% urgent+now",
	}
	for _, name := range names {
		encoded := EncodeConferenceName(name)
		if strings.ContainsAny(encoded, " &?#") {
			t.Fatalf("encoded name %q still contains reserved characters", encoded)
		}
		decoded, err := DecodeConferenceName(encoded)
		if err != nil {
			t.Fatalf("decode %q: %v", encoded, err)
		}
		if decoded != name {
			t.Fatalf("round trip mismatch: %q -> %q -> %q", name, encoded, decoded)
		}
	}
}

func TestGenerateConferenceName_Shape(t *testing.T) {
	now := time.UnixMilli(1700000000123).UTC()
	name := GenerateConferenceName(now)
	if name != "conf_phone_to_phone_1700000000123" {
		t.Fatalf("unexpected generated name %q", name)
	}
}

func TestParseRole(t *testing.T) {
	cases := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"Agent", RoleAgent, false},
		{"agent", RoleAgent, false},
		{"Participant", RoleParticipant, false},
		{"Recipient", RoleParticipant, false},
		{"", RoleParticipant, false},
		{"operator", "", true},
	}
	for _, tc := range cases {
		got, err := ParseRole(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseRole(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseRole(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseRole(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestConferencePolicy_OwnsConference(t *testing.T) {
	if !ConferencePolicyAgentOwned.OwnsConference(RoleAgent) {
		t.Fatalf("agent should own agent-owned conference")
	}
	if ConferencePolicyAgentOwned.OwnsConference(RoleParticipant) {
		t.Fatalf("participant should not own agent-owned conference")
	}
	if ConferencePolicyParticipantOwned.OwnsConference(RoleAgent) {
		t.Fatalf("agent should not own participant-owned conference")
	}
	if !ConferencePolicyParticipantOwned.OwnsConference(RoleParticipant) {
		t.Fatalf("participant should own participant-owned conference")
	}
}

func TestEmailDomain(t *testing.T) {
	if got := EmailDomain("A@X.Com"); got != "x.com" {
		t.Fatalf("expected lower-cased domain, got %q", got)
	}
	if got := EmailDomain("not-an-email"); got != "" {
		t.Fatalf("expected empty domain for invalid email, got %q", got)
	}
}

func TestValidEmailShape(t *testing.T) {
	valid := []string{"a@x.com", "first.last@sub.domain.org"}
	invalid := []string{"", "a@x", "a x@y.com", "@x.com", "a@.com"}
	for _, email := range valid {
		if !ValidEmailShape(email) {
			t.Fatalf("expected %q to be valid", email)
		}
	}
	for _, email := range invalid {
		if ValidEmailShape(email) {
			t.Fatalf("expected %q to be invalid", email)
		}
	}
}

func TestStatusCallbackURL(t *testing.T) {
	got := StatusCallbackURL("https://host.example/call/", EncodeConferenceName("sales call"), RoleAgent)
	want := "https://host.example/call/status?conferenceName=sales+call&role=Agent"
	if got != want {
		t.Fatalf("status callback url = %q, want %q", got, want)
	}
}
