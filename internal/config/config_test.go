package config

import "testing"

func TestStorageGroupMatchesLiteral(t *testing.T) {
	g := StorageGroup{Pattern: "acme", PhysicalPrefix: "grp"}
	if !g.Matches("acme") {
		t.Error("expected literal pattern to match identical domain")
	}
	if g.Matches("acme2") {
		t.Error("literal pattern should not match a different domain")
	}
}

func TestStorageGroupMatchesWildcard(t *testing.T) {
	g := StorageGroup{Pattern: "*", PhysicalPrefix: "shared"}
	if !g.Matches("anything") {
		t.Error("expected * to match every domain")
	}
}

func TestParseStorageGroupsCompilesRegex(t *testing.T) {
	groups, err := parseStorageGroups([]any{
		map[string]any{"domain": "/^tenant-\\d+$/", "prefix": "tenants"},
	})
	if err != nil {
		t.Fatalf("parseStorageGroups: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("len(groups) = %d, want 1", len(groups))
	}
	if !groups[0].Matches("tenant-42") {
		t.Error("expected regex pattern to match tenant-42")
	}
	if groups[0].Matches("tenant-x") {
		t.Error("regex pattern should not match tenant-x")
	}
}

func TestParseStorageGroupsRejectsInvalidRegex(t *testing.T) {
	_, err := parseStorageGroups([]any{
		map[string]any{"domain": "/[/", "prefix": "bad"},
	})
	if err == nil {
		t.Fatal("expected an error for an invalid regex pattern")
	}
}

func TestPhysicalPrefixFallsBackToDomain(t *testing.T) {
	cfg := &Config{StorageGroups: []StorageGroup{{Pattern: "acme", PhysicalPrefix: "grp"}}}
	if got := cfg.PhysicalPrefix("acme"); got != "grp" {
		t.Errorf("PhysicalPrefix(acme) = %q, want grp", got)
	}
	if got := cfg.PhysicalPrefix("other"); got != "other" {
		t.Errorf("PhysicalPrefix(other) = %q, want other (fallback)", got)
	}
}

func TestPhysicalPrefixFirstMatchWins(t *testing.T) {
	cfg := &Config{StorageGroups: []StorageGroup{
		{Pattern: "acme", PhysicalPrefix: "first"},
		{Pattern: "*", PhysicalPrefix: "catchall"},
	}}
	if got := cfg.PhysicalPrefix("acme"); got != "first" {
		t.Errorf("PhysicalPrefix(acme) = %q, want first", got)
	}
	if got := cfg.PhysicalPrefix("other"); got != "catchall" {
		t.Errorf("PhysicalPrefix(other) = %q, want catchall", got)
	}
}
