package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeExec struct {
	loggedIn bool
	fail     map[string]error

	calls []string
}

func (f *fakeExec) record(name string) error {
	f.calls = append(f.calls, name)
	return f.fail[name]
}

func (f *fakeExec) isLoggedIn() bool                       { return f.loggedIn }
func (f *fakeExec) Register(ctx context.Context) error     { return f.record("register") }
func (f *fakeExec) Verify(ctx context.Context) error       { return f.record("verify") }
func (f *fakeExec) Resend(ctx context.Context) error       { return f.record("resend") }
func (f *fakeExec) Abandon(ctx context.Context) error      { return f.record("abandon") }
func (f *fakeExec) Guest(ctx context.Context) error        { return f.record("guest") }
func (f *fakeExec) Forgot(ctx context.Context) error       { return f.record("forgot") }
func (f *fakeExec) Reset(ctx context.Context) error        { return f.record("reset") }
func (f *fakeExec) WhoAmI(ctx context.Context) error       { return f.record("whoami") }
func (f *fakeExec) Devices(ctx context.Context) error      { return f.record("devices") }
func (f *fakeExec) ForgetDevice(ctx context.Context) error { return f.record("forget-device") }
func (f *fakeExec) Wipe(ctx context.Context) error         { return f.record("wipe") }
func (f *fakeExec) Login(ctx context.Context) error {
	f.loggedIn = true
	return f.record("login")
}
func (f *fakeExec) Logout(ctx context.Context) error {
	f.loggedIn = false
	return f.record("logout")
}

// capturePrintln replaces printlnFn and returns the printed lines.
func capturePrintln(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		lines = append(lines, fmt.Sprint(a...))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &lines
}

func TestRunREPL_DispatchesEveryCommand(t *testing.T) {
	capturePrintln(t)

	input := strings.NewReader(strings.Join([]string{
		"register",
		"verify",
		"resend",
		"abandon",
		"guest",
		"forgot",
		"reset",
		"login",
		"whoami",
		"devices",
		"forget-device",
		"logout",
		"wipe",
		"exit",
		"whoami",
	}, "\n"))

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "status" }, bufio.NewScanner(input))

	require.Equal(t, []string{
		"register", "verify", "resend", "abandon", "guest", "forgot", "reset",
		"login", "whoami", "devices", "forget-device", "logout", "wipe",
	}, exec.calls)
}

func TestRunREPL_HelpDependsOnLoginState(t *testing.T) {
	lines := capturePrintln(t)

	input := strings.NewReader("help\nlogin\nhelp\n")
	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "s" }, bufio.NewScanner(input))

	require.Contains(t, *lines, helpAnonymous)
	require.Contains(t, *lines, helpAuthenticated)
	require.Equal(t, []string{"login"}, exec.calls)
}

func TestRunREPL_UnknownBlankAndQuit(t *testing.T) {
	lines := capturePrintln(t)

	input := strings.NewReader("\n   \nfoobar 1 2\nquit\nlogin\n")
	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "s" }, bufio.NewScanner(input))

	require.Empty(t, exec.calls)
	require.Contains(t, *lines, "Unknown command:foobar")
	require.Contains(t, *lines, "Bye!")
}

func TestRunREPL_ErrorsArePrintedAndLoopContinues(t *testing.T) {
	lines := capturePrintln(t)

	input := strings.NewReader("verify\nlogin\n")
	exec := &fakeExec{fail: map[string]error{"verify": errors.New("no pending registration")}}
	runREPL(context.Background(), exec, func() string { return "s" }, bufio.NewScanner(input))

	require.Equal(t, []string{"verify", "login"}, exec.calls)
	require.Contains(t, *lines, "Error: no pending registration")
}

func TestRunREPL_PromptShowsStatus(t *testing.T) {
	lines := capturePrintln(t)

	n := 0
	status := func() string { n++; return fmt.Sprintf("(#%d)", n) }
	runREPL(context.Background(), &fakeExec{}, status, bufio.NewScanner(strings.NewReader("help\n")))

	require.Equal(t, "da (#1) > ", (*lines)[0])
	require.Equal(t, "da (#2) > ", (*lines)[len(*lines)-1])
}
