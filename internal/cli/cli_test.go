package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionSkipsConfig(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version", "--config", "/does/not/exist.yaml"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out.String(), "client-agent: hordewatch:") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"run", "probe", "generation", "export", "show", "backfill", "simulate-halt", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("command %q not registered: %v", name, err)
		}
	}
	if cmd, _, err := rootCmd.Find([]string{"generation", "cancel"}); err != nil || cmd != generationCancelCmd {
		t.Fatalf("generation cancel not registered: %v", err)
	}
}
