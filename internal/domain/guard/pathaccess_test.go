package guard

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestPathPolicy_NoRestrictions(t *testing.T) {
	t.Parallel()

	policy := NewPathPolicy(nil, nil, testLogger())

	if !policy.Check("/var/log/app.log") {
		t.Error("expected unrestricted policy to allow")
	}
}

func TestPathPolicy_BlockedPrefix(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	policy := NewPathPolicy([]string{"/etc/", "/root/"}, nil, logger)

	if policy.Check("/etc/shadow") {
		t.Error("expected blocked path to be denied")
	}
	if !strings.Contains(buf.String(), "blocked path") {
		t.Error("expected a warning log for the blocked path")
	}
	if !policy.Check("/var/log/app.log") {
		t.Error("expected path outside blocked prefixes to be allowed")
	}
}

func TestPathPolicy_TraversalResolvedBeforeCheck(t *testing.T) {
	t.Parallel()

	policy := NewPathPolicy([]string{"/etc/"}, nil, testLogger())

	if policy.Check("/var/data/../../etc/shadow") {
		t.Error("expected traversal into a blocked prefix to be denied")
	}
}

func TestPathPolicy_AllowedList(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	policy := NewPathPolicy(nil, []string{"/srv/data/", "/tmp/"}, logger)

	if !policy.Check("/srv/data/report.csv") {
		t.Error("expected path under an allowed prefix to pass")
	}
	if policy.Check("/home/user/secret.txt") {
		t.Error("expected path outside the allowed list to be denied")
	}
	if !strings.Contains(buf.String(), "non-allowed path") {
		t.Error("expected a warning log for the non-allowed path")
	}
}

func TestPathPolicy_BlockedWinsOverAllowed(t *testing.T) {
	t.Parallel()

	policy := NewPathPolicy([]string{"/srv/data/private/"}, []string{"/srv/data/"}, testLogger())

	if !policy.Check("/srv/data/public.csv") {
		t.Error("expected allowed path to pass")
	}
	if policy.Check("/srv/data/private/keys.pem") {
		t.Error("expected blocked prefix to win over the allowed list")
	}
}
