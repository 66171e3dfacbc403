// Package interactive provides the interactive command-line interface
// for meshbridge.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/meshbridge/meshbridge-go/pkg/errcode"
	"github.com/meshbridge/meshbridge-go/pkg/session"
	"github.com/meshbridge/meshbridge-go/pkg/transport"
)

// Bridge is the session surface the console drives.
type Bridge interface {
	Open(ctx context.Context) error
	Reconnect() error
	Status() session.Status
	Subscribe(fn func(connected bool)) (unsubscribe func())
	ResetRecovery()
}

// Link reports the gateway link.
type Link interface {
	Target() string
	Connected() bool
}

// Console handles interactive mode for meshbridge.
type Console struct {
	rl  *readline.Instance
	out io.Writer

	bridge Bridge
	link   Link

	unwatch func()
}

// New creates the console. The readline instance is created immediately so
// that log output can be routed through Stdout before Run starts.
func New() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "bridge> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl, out: rl.Stdout()}, nil
}

func newConsole(out io.Writer, bridge Bridge, link Link) *Console {
	return &Console{out: out, bridge: bridge, link: link}
}

// Stdout returns a writer that properly coordinates with the readline input.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run reads commands until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc, bridge Bridge, link Link) {
	defer c.rl.Close()
	c.bridge = bridge
	c.link = link

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if c.Exec(ctx, line) {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Exec runs one command line and reports whether the console should exit.
func (c *Console) Exec(ctx context.Context, line string) (quit bool) {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "status", "s":
		c.cmdStatus()

	case "connect", "open":
		c.cmdConnect(ctx)

	case "force", "reconnect":
		c.cmdForce()

	case "reset":
		c.cmdReset()

	case "watch":
		c.cmdWatch(args)

	case "quit", "exit", "q":
		return true

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Mesh Bridge Commands:
  status          - Show session and link state
  connect         - Open the session (initial connect with retries)
  force           - Discard any cycle in progress and start a new one
  reset           - Abandon the current reconnect cycle
  watch [on|off]  - Print every connection-state change
  help            - Show this help
  quit            - Exit`)
}

func (c *Console) cmdStatus() {
	st := c.bridge.Status()

	fmt.Fprintf(c.out, "Session:      %s\n", st.ID)
	fmt.Fprintf(c.out, "Open:         %t\n", st.Open)
	fmt.Fprintf(c.out, "State:        %s\n", st.State)
	fmt.Fprintf(c.out, "Connected:    %t\n", st.Connected)
	if st.Reconnecting {
		fmt.Fprintf(c.out, "Reconnecting: attempt %d\n", st.Attempts)
	}
	if c.link != nil {
		target := c.link.Target()
		if target == "" {
			target = "-"
		}
		fmt.Fprintf(c.out, "Gateway:      %s (link up: %t)\n", target, c.link.Connected())
	}
}

func (c *Console) cmdConnect(ctx context.Context) {
	fmt.Fprintln(c.out, "Connecting...")
	if err := c.bridge.Open(ctx); err != nil {
		fmt.Fprintf(c.out, "Connect failed [%s]: %v\n", errcode.CodeOf(err, errcode.ConnectionError), err)
		return
	}
	fmt.Fprintln(c.out, "Connected")
}

func (c *Console) cmdForce() {
	if err := c.bridge.Reconnect(); err != nil {
		fmt.Fprintf(c.out, "Cannot reconnect [%s]: %v\n", errcode.CodeOf(err, errcode.CommandError), err)
		return
	}
	fmt.Fprintf(c.out, "Reconnect cycle started (attempt %d)\n", c.bridge.Status().Attempts)
}

func (c *Console) cmdReset() {
	c.bridge.ResetRecovery()
	fmt.Fprintln(c.out, "Reconnect cycle abandoned")
}

func (c *Console) cmdWatch(args []string) {
	on := len(args) == 0 || strings.EqualFold(args[0], "on")

	if c.unwatch != nil {
		c.unwatch()
		c.unwatch = nil
	}
	if !on {
		fmt.Fprintln(c.out, "Watch off")
		return
	}

	c.unwatch = c.bridge.Subscribe(func(connected bool) {
		fmt.Fprintf(c.out, "[WATCH] connected=%t\n", connected)
	})
	fmt.Fprintln(c.out, "Watch on")
}

// Compile-time interface satisfaction checks.
var (
	_ Bridge = (*session.Session)(nil)
	_ Link   = (*transport.Client)(nil)
)
