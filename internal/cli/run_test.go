package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestRun_Help(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no args", args: []string{"amr"}},
		{name: "long flag", args: []string{"amr", "--help"}},
		{name: "short flag", args: []string{"amr", "-h"}},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())

			var stdout, stderr bytes.Buffer

			exitCode := Run(nil, &stdout, &stderr, testCase.args, nil, nil)

			if exitCode != 0 {
				t.Fatalf("exit code = %d, want 0, stderr=%q", exitCode, stderr.String())
			}

			out := stdout.String()

			if !strings.Contains(out, "amr - persistent knowledge store") {
				t.Errorf("stdout should contain title, got %q", out)
			}

			if !strings.Contains(out, "search") {
				t.Errorf("stdout should list the search command")
			}

			if !strings.Contains(out, "--dir") {
				t.Errorf("stdout should contain --dir option")
			}
		})
	}
}

func TestRun_StoreThenSearch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	var stdout, stderr bytes.Buffer

	exitCode := Run(nil, &stdout, &stderr,
		[]string{"amr", "--dir", dir, "store", "ffi", "cgo calls must avoid passing Go pointers to C"}, nil, nil)
	if exitCode != 0 {
		t.Fatalf("store exit code = %d, stderr=%q", exitCode, stderr.String())
	}

	stdout.Reset()
	stderr.Reset()

	exitCode = Run(nil, &stdout, &stderr,
		[]string{"amr", "--dir", dir, "--plain", "search", "cgo pointers"}, nil, nil)
	if exitCode != 0 {
		t.Fatalf("search exit code = %d, stderr=%q", exitCode, stderr.String())
	}

	if !strings.Contains(stdout.String(), "ffi") {
		t.Errorf("search output should mention the ffi topic, got %q", stdout.String())
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	exitCode := Run(nil, &stdout, &stderr, []string{"amr", "--dir", t.TempDir(), "bogus"}, nil, nil)
	if exitCode != 1 {
		t.Errorf("exit code = %d, want 1", exitCode)
	}

	if !strings.Contains(stderr.String(), "unknown command") {
		t.Errorf("stderr should report unknown command, got %q", stderr.String())
	}
}
