package window

import (
	"context"
	"errors"
	"testing"
)

type recordedCall struct {
	name string
	args []string
}

type fakeRunner struct {
	calls []recordedCall
	err   error
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, recordedCall{name, args})
	return nil, f.err
}

func TestBuildWindowCommand(t *testing.T) {
	cmd, args := buildWindowCommand("linux", "activate", "Auto Homework")
	if cmd != "wmctrl" || len(args) != 3 || args[2] != "Auto Homework" {
		t.Fatalf("unexpected activate command: %s %v", cmd, args)
	}
	if cmd, _ := buildWindowCommand("windows", "activate", "Auto Homework"); cmd != "" {
		t.Fatalf("expected no native command on windows, got %s", cmd)
	}
}

func TestBuildOpenCommand(t *testing.T) {
	cases := map[string]string{"linux": "xdg-open", "darwin": "open", "windows": "rundll32", "plan9": ""}
	for goos, want := range cases {
		if cmd, _ := buildOpenCommand(goos, "http://127.0.0.1:58701/"); cmd != want {
			t.Fatalf("expected %q for %s, got %q", want, goos, cmd)
		}
	}
}

func TestNativeUsesExactTitle(t *testing.T) {
	runner := &fakeRunner{}
	native := &Native{goos: "linux", run: runner.run, lookPath: func(string) (string, error) { return "/usr/bin/wmctrl", nil }}

	if err := native.Activate("Auto Homework"); err != nil {
		t.Fatal(err)
	}
	if len(runner.calls) != 1 || runner.calls[0].args[0] != "-F" {
		t.Fatalf("expected one exact-title wmctrl call, got %v", runner.calls)
	}

	missing := &Native{goos: "linux", run: runner.run, lookPath: func(string) (string, error) { return "", errors.New("not found") }}
	if err := missing.Activate("Auto Homework"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable without wmctrl, got %v", err)
	}
}

func TestCloseHidesInsteadOfClosing(t *testing.T) {
	cmd, args := buildWindowCommand("linux", "close", "Auto Homework")
	if cmd != "wmctrl" || args[len(args)-1] != "add,hidden" {
		t.Fatalf("expected close to hide the window, got %s %v", cmd, args)
	}
	for _, arg := range args {
		if arg == "-c" {
			t.Fatalf("close must not destroy the window: %v", args)
		}
	}
}

func TestNativePrefersDirectControl(t *testing.T) {
	runner := &fakeRunner{}
	var actions []string
	native := &Native{
		goos:     "windows",
		run:      runner.run,
		lookPath: func(string) (string, error) { return "", errors.New("not found") },
		direct: func(action, title string) error {
			actions = append(actions, action+":"+title)
			return nil
		},
	}

	if err := native.Activate("Auto Homework"); err != nil {
		t.Fatal(err)
	}
	if err := native.Minimize("Auto Homework"); err != nil {
		t.Fatal(err)
	}
	if err := native.Close("Auto Homework"); err != nil {
		t.Fatal(err)
	}
	if len(actions) != 3 || actions[0] != "activate:Auto Homework" || actions[2] != "close:Auto Homework" {
		t.Fatalf("unexpected direct actions %v", actions)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("expected no commands, got %v", runner.calls)
	}
}

type fakeNative struct {
	failing map[string]bool
	calls   []string
}

func (f *fakeNative) call(action string) error {
	f.calls = append(f.calls, action)
	if f.failing[action] {
		return errors.New(action + " failed")
	}
	return nil
}

func (f *fakeNative) Activate(title string) error { return f.call("activate") }
func (f *fakeNative) Minimize(title string) error { return f.call("minimize") }
func (f *fakeNative) Close(title string) error    { return f.call("close") }

type fakeOpener struct {
	urls []string
	err  error
}

func (f *fakeOpener) Open(url string) error {
	f.urls = append(f.urls, url)
	return f.err
}

func TestControllerFallbacks(t *testing.T) {
	t.Run("minimize falls back to hide", func(t *testing.T) {
		native := &fakeNative{failing: map[string]bool{"minimize": true}}
		c := NewController("Auto Homework", "http://ui/", native, &fakeOpener{})
		if err := c.Minimize(); err != nil {
			t.Fatal(err)
		}
		if len(native.calls) != 2 || native.calls[1] != "close" {
			t.Fatalf("unexpected call order %v", native.calls)
		}
	})

	t.Run("close prefers hide", func(t *testing.T) {
		native := &fakeNative{}
		c := NewController("Auto Homework", "http://ui/", native, &fakeOpener{})
		if err := c.Close(); err != nil {
			t.Fatal(err)
		}
		if len(native.calls) != 1 || native.calls[0] != "close" {
			t.Fatalf("unexpected call order %v", native.calls)
		}
	})

	t.Run("show reopens the ui", func(t *testing.T) {
		native := &fakeNative{failing: map[string]bool{"activate": true}}
		opener := &fakeOpener{}
		c := NewController("Auto Homework", "http://ui/", native, opener)
		if err := c.Show(); err != nil {
			t.Fatal(err)
		}
		if len(opener.urls) != 1 || opener.urls[0] != "http://ui/" {
			t.Fatalf("expected ui url to be opened, got %v", opener.urls)
		}
	})

	t.Run("everything unavailable", func(t *testing.T) {
		c := NewController("Auto Homework", "", nil, nil)
		if err := c.Show(); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
	})
}
