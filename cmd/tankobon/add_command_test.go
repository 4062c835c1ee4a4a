package main

import "testing"

func TestParseTagFlags(t *testing.T) {
	defs, err := parseTagFlags([]string{"x=3:translated-x", "y=plain", "z=a:b"})
	if err != nil {
		t.Fatalf("parseTagFlags: %v", err)
	}
	if def := defs["x"]; def.GroupID == nil || *def.GroupID != 3 || def.Name != "translated-x" {
		t.Fatalf("unexpected x definition: %+v", def)
	}
	if def := defs["y"]; def.GroupID != nil || def.Name != "plain" {
		t.Fatalf("unexpected y definition: %+v", def)
	}
	if def := defs["z"]; def.GroupID != nil || def.Name != "a:b" {
		t.Fatalf("non-numeric group should keep the whole name: %+v", def)
	}

	for _, bad := range []string{"noequals", "=name", "x=", "x=3:"} {
		if _, err := parseTagFlags([]string{bad}); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}

	if defs, err := parseTagFlags(nil); err != nil || defs != nil {
		t.Fatalf("expected nil definitions, got %v %v", defs, err)
	}
}
