package cmd

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/toolwarden/toolwarden/internal/config"
)

func TestCommands_Registered(t *testing.T) {
	want := []string{"start", "check", "user", "token", "hash-password", "reset", "version"}
	for _, name := range want {
		found := false
		for _, cmd := range rootCmd.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("%s command not registered with rootCmd", name)
		}
	}
}

func TestUserSubcommands_Registered(t *testing.T) {
	want := []string{"add", "list", "remove"}
	for _, name := range want {
		found := false
		for _, cmd := range userCmd.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("user %s subcommand not registered", name)
		}
	}
}

func TestRootCmd_Description(t *testing.T) {
	if rootCmd.Short == "" {
		t.Error("root command missing Short description")
	}
	// The Long help should name every command so --help is a full map.
	for _, name := range []string{"start", "check", "user", "token", "hash-password", "reset", "version"} {
		if !strings.Contains(rootCmd.Long, name) {
			t.Errorf("rootCmd.Long should mention the %s command", name)
		}
	}
	if !strings.Contains(rootCmd.Long, "TOOLWARDEN_") {
		t.Error("rootCmd.Long should mention the environment variable prefix")
	}
}

func TestPersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "state"} {
		flag := rootCmd.PersistentFlags().Lookup(name)
		if flag == nil {
			t.Fatalf("%s persistent flag not registered", name)
		}
		if flag.DefValue != "" {
			t.Errorf("%s default = %q, want empty", name, flag.DefValue)
		}
		if flag.Usage == "" {
			t.Errorf("%s flag missing usage description", name)
		}
	}
}

func TestResolveStatePath_FlagWins(t *testing.T) {
	oldFlag := stateFilePath
	defer func() { stateFilePath = oldFlag }()

	stateFilePath = "/tmp/flag-state.json"
	cfg := &config.Config{}
	cfg.State.Path = "/tmp/cfg-state.json"
	if got := resolveStatePath(cfg); got != "/tmp/flag-state.json" {
		t.Errorf("resolveStatePath = %q, want flag value", got)
	}
}

func TestResolveStatePath_ConfigSecond(t *testing.T) {
	oldFlag := stateFilePath
	defer func() { stateFilePath = oldFlag }()
	stateFilePath = ""

	cfg := &config.Config{}
	cfg.State.Path = "/tmp/cfg-state.json"
	if got := resolveStatePath(cfg); got != "/tmp/cfg-state.json" {
		t.Errorf("resolveStatePath = %q, want config value", got)
	}
}

func TestResolveStatePath_EnvThird(t *testing.T) {
	oldFlag := stateFilePath
	defer func() { stateFilePath = oldFlag }()
	stateFilePath = ""
	t.Setenv("TOOLWARDEN_STATE_PATH", "/tmp/env-state.json")

	if got := resolveStatePath(nil); got != "/tmp/env-state.json" {
		t.Errorf("resolveStatePath = %q, want env value", got)
	}
}

func TestResolveStatePath_HomeDefault(t *testing.T) {
	oldFlag := stateFilePath
	defer func() { stateFilePath = oldFlag }()
	stateFilePath = ""
	t.Setenv("TOOLWARDEN_STATE_PATH", "")

	got := resolveStatePath(nil)
	if filepath.Base(got) != "state.json" {
		t.Errorf("resolveStatePath = %q, want a state.json path", got)
	}
	if !strings.Contains(got, ".toolwarden") {
		t.Errorf("resolveStatePath = %q, want the home default under .toolwarden", got)
	}
}
