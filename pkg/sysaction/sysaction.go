// Package sysaction invokes host session and power commands when the
// monitor changes presence state.
package sysaction

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/rs/zerolog"
)

// AwayMode selects what happens when the target device leaves range.
type AwayMode string

const (
	ModeLock       AwayMode = "lock"
	ModeDisplayOff AwayMode = "display_off"
	ModeSleep      AwayMode = "sleep"
)

// Actions fires the side effects attached to presence transitions.
type Actions interface {
	// Away runs when the device has left range: lock the session, turn
	// the display off, or suspend, depending on the configured mode.
	Away(ctx context.Context) error

	// Return runs when the device is back in range. On most setups this
	// is a cheap poke; the user still authenticates at the lock screen.
	Return(ctx context.Context) error
}

// Runner executes a single external command. Swapped out in tests.
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// displayOffScript broadcasts WM_SYSCOMMAND/SC_MONITORPOWER through a
// P/Invoke shim, the same call the Win32 API exposes for display power.
const displayOffScript = `(Add-Type ` +
	`'[DllImport("user32.dll")]public static extern int SendMessage(int hWnd,int Msg,int wParam,int lParam);' ` +
	`-Name u32 -PassThru)::SendMessage(0xffff,0x0112,0xf170,2)`

// SystemActions implements Actions by shelling out to platform tools.
type SystemActions struct {
	awayCmd   []string
	returnCmd []string
	run       Runner
	logger    zerolog.Logger
}

// New builds the action set for the current platform and away mode.
func New(mode AwayMode, logger zerolog.Logger) (*SystemActions, error) {
	return newForPlatform(runtime.GOOS, mode, execRunner, logger)
}

func newForPlatform(goos string, mode AwayMode, run Runner, logger zerolog.Logger) (*SystemActions, error) {
	away, ret, err := commandsFor(goos, mode)
	if err != nil {
		return nil, err
	}
	return &SystemActions{awayCmd: away, returnCmd: ret, run: run, logger: logger}, nil
}

// commandsFor maps platform and mode to concrete command lines.
func commandsFor(goos string, mode AwayMode) (away, ret []string, err error) {
	switch goos {
	case "windows":
		switch mode {
		case ModeLock, "":
			away = []string{"rundll32.exe", "user32.dll,LockWorkStation"}
		case ModeDisplayOff:
			away = []string{"powershell", "-NoProfile", "-Command", displayOffScript}
		case ModeSleep:
			away = []string{"rundll32.exe", "powrprof.dll,SetSuspendState", "0", "1", "0"}
		default:
			return nil, nil, fmt.Errorf("unknown away mode %q", mode)
		}
		ret = []string{"powercfg", "/requests"}

	case "linux":
		switch mode {
		case ModeLock, "":
			away = []string{"loginctl", "lock-session"}
		case ModeDisplayOff:
			away = []string{"xset", "dpms", "force", "off"}
		case ModeSleep:
			away = []string{"systemctl", "suspend"}
		default:
			return nil, nil, fmt.Errorf("unknown away mode %q", mode)
		}
		ret = []string{"loginctl", "unlock-session"}

	default:
		return nil, nil, fmt.Errorf("unsupported platform %q", goos)
	}
	return away, ret, nil
}

// Away executes the configured away command.
func (a *SystemActions) Away(ctx context.Context) error {
	a.logger.Info().Strs("command", a.awayCmd).Msg("Executing away action")
	if err := a.run(ctx, a.awayCmd[0], a.awayCmd[1:]...); err != nil {
		return fmt.Errorf("away action: %w", err)
	}
	return nil
}

// Return executes the configured return command.
func (a *SystemActions) Return(ctx context.Context) error {
	a.logger.Info().Strs("command", a.returnCmd).Msg("Executing return action")
	if err := a.run(ctx, a.returnCmd[0], a.returnCmd[1:]...); err != nil {
		return fmt.Errorf("return action: %w", err)
	}
	return nil
}
