package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"toolbox/internal/config"
)

func TestRunCommand(t *testing.T) {
	quiet := []string{"--log-file=", "--log-level", "error"}

	testCases := []struct {
		name       string
		args       []string
		wantFailed bool
		wantErr    bool
		wantOut    string
	}{
		{
			name:    "numbers drained",
			args:    []string{"--workers", "3", "--count", "20", "--delay", "0s"},
			wantOut: "20 done",
		},
		{
			name:       "injected failure",
			args:       []string{"--workers", "2", "--count", "50", "--delay", "0s", "--fail-at", "3"},
			wantFailed: true,
			wantErr:    true,
		},
		{
			name:    "invalid pairing",
			args:    []string{"--source", "numbers", "--task", "echo"},
			wantErr: true,
		},
		{
			name:    "invalid worker count",
			args:    []string{"--workers", "0"},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			cmd := newRunCmd()
			cmd.SetArgs(append(tc.args, quiet...))
			cmd.SetOut(&out)
			cmd.SetErr(&out)

			err := cmd.Execute()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Execute() error = %v, wantErr %v", err, tc.wantErr)
			}
			if errors.Is(err, errFailed) != tc.wantFailed {
				t.Errorf("errors.Is(err, errFailed) = %v, want %v (err=%v)", !tc.wantFailed, tc.wantFailed, err)
			}
			if tc.wantOut != "" && !strings.Contains(out.String(), tc.wantOut) {
				t.Errorf("output does not contain %q:\n%s", tc.wantOut, out.String())
			}
		})
	}
}

func TestRunEchoLines(t *testing.T) {
	cfg := config.Default()
	cfg.Source = config.SourceLines
	cfg.Task = config.TaskEcho
	cfg.Workers = 2
	cfg.LogFile = ""

	var out bytes.Buffer
	in := strings.NewReader("alpha\n# skipped\n\nbeta\ngamma\n")
	if err := run(context.Background(), cfg, in, &out); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got := out.String()
	for _, want := range []string{"alpha\n", "beta\n", "gamma\n", "3 done"} {
		if !strings.Contains(got, want) {
			t.Errorf("output does not contain %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "skipped") {
		t.Errorf("comment line was echoed:\n%s", got)
	}
}

func TestOverrideFromFlags(t *testing.T) {
	cmd := newRunCmd()
	if err := cmd.ParseFlags([]string{"--workers", "9", "--task", "links"}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}

	cfg := config.Default()
	cfg.Source = config.SourceLines
	cfg.Count = 7
	flags := config.Config{Workers: 9, Task: config.TaskLinks, Count: 100}
	overrideFromFlags(cmd, cfg, &flags)

	if cfg.Workers != 9 {
		t.Errorf("Workers = %d, want 9", cfg.Workers)
	}
	if cfg.Task != config.TaskLinks {
		t.Errorf("Task = %q, want %q", cfg.Task, config.TaskLinks)
	}
	if cfg.Count != 7 {
		t.Errorf("Count = %d, want 7 (flag was not given)", cfg.Count)
	}
	if cfg.Source != config.SourceLines {
		t.Errorf("Source = %q, want %q", cfg.Source, config.SourceLines)
	}
}
