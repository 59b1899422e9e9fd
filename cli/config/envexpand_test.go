package config

import (
	"errors"
	"strings"
	"testing"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("OM_SET", "real")
	t.Setenv("OM_EMPTY", "")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"set", "token: ${OM_SET}", "token: real"},
		{"unset", "token: ${OM_UNSET_12345}", "token: "},
		{"fallback when unset", "${OM_UNSET_12345:-om.internal}", "om.internal"},
		{"fallback ignored when set", "${OM_SET:-om.internal}", "real"},
		{"fallback when empty", "${OM_EMPTY:-om.internal}", "om.internal"},
		{"empty fallback", "[${OM_UNSET_12345:-}]", "[]"},
		{"required and set", "${OM_SET:?device token}", "real"},
		{"several", "${OM_SET}/${OM_UNSET_12345:-x}/${OM_SET}", "real/x/real"},
		{"plain dollar kept", "cost: $5 and $OM_SET", "cost: $5 and $OM_SET"},
		{"no refs", "no variables here", "no variables here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandEnv(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExpandEnv_Required(t *testing.T) {
	t.Setenv("OM_EMPTY", "")

	_, err := ExpandEnv("a: ${OM_UNSET_12345:?set the device token}\nb: ${OM_EMPTY:?}")
	if err == nil {
		t.Fatal("expected error for missing required variables")
	}

	var missing *MissingEnvError
	if !errors.As(err, &missing) || missing.Name != "OM_UNSET_12345" {
		t.Fatalf("errors.As = %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "OM_UNSET_12345 is required: set the device token") {
		t.Errorf("message should carry the hint, got %q", msg)
	}
	if !strings.Contains(msg, "OM_EMPTY is required") {
		t.Errorf("every missing variable should be reported, got %q", msg)
	}
}

func TestExpandEnv_InYAML(t *testing.T) {
	t.Setenv("OM_URL", "https://cloud.example.com")
	t.Setenv("OM_TOKEN", "secret")

	input := `connection:
  url: ${OM_URL}
  access_token: ${OM_TOKEN:?}
  host_alias: ${OM_HOST_UNSET:-om.internal}`

	got, err := ExpandEnv(input)
	if err != nil {
		t.Fatal(err)
	}
	want := `connection:
  url: https://cloud.example.com
  access_token: secret
  host_alias: om.internal`
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}
