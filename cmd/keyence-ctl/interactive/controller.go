// Package interactive provides the interactive command-line interface for
// keyence-ctl.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/kswx/keyence-go/pkg/bundle"
	"github.com/kswx/keyence-go/pkg/pose"
	"github.com/kswx/keyence-go/pkg/session"
)

// errQuit ends the command loop.
var errQuit = errors.New("quit")

// Controller runs sensor commands typed by the user.
type Controller struct {
	dev *bundle.Device
	out io.Writer
	rl  *readline.Instance
}

// New creates an interactive controller for dev.
func New(dev *bundle.Device) (*Controller, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "sensor> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("trigger"),
			readline.PcItem("count"),
			readline.PcItem("pose", readline.PcItem("0"), readline.PcItem("1")),
			readline.PcItem("poses", readline.PcItem("0"), readline.PcItem("1")),
			readline.PcItem("ready", readline.PcItem("on"), readline.PcItem("off")),
			readline.PcItem("status"),
			readline.PcItem("activate"),
			readline.PcItem("deactivate"),
			readline.PcItem("reconnect"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Controller{dev: dev, out: rl.Stdout(), rl: rl}, nil
}

// Stdout returns a writer that coordinates with the readline prompt.
func (c *Controller) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run reads commands until quit, EOF or ctx is done.
func (c *Controller) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

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

		if err := c.Exec(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				fmt.Fprintln(c.out, "Exiting...")
				cancel()
				return
			}
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
	}
}

// Exec runs one command line.
func (c *Controller) Exec(ctx context.Context, line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
		return nil
	case "trigger", "t":
		return c.cmdTrigger(ctx)
	case "count", "c":
		return c.cmdCount(ctx)
	case "pose", "p":
		return c.cmdPose(ctx, args)
	case "poses":
		return c.cmdPoses(ctx, args)
	case "ready":
		return c.cmdReady(args)
	case "status", "s":
		c.cmdStatus()
		return nil
	case "activate":
		if err := c.dev.OnActivate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "Activated")
		return nil
	case "deactivate":
		if err := c.dev.OnDeactivate(); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "Deactivated")
		return nil
	case "reconnect":
		if err := c.dev.Session().Reconnect(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "Reconnected (signal ready again before commands)")
		return nil
	case "quit", "exit", "q":
		return errQuit
	default:
		return fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
	}
}

func (c *Controller) printHelp() {
	fmt.Fprintln(c.out, `
Sensor Commands:
  Detection:
    trigger                - Capture an image
    count                  - Capture an image and report the object count
    pose [frame]           - Pose of the first object (0 sensor, 1 robot base)
    poses [frame]          - Poses of all detected objects

  Lifecycle:
    ready on|off           - Set the hardware ready signal
    activate               - Activate the session
    deactivate             - Deactivate the session
    reconnect              - Reopen the connection after a loss
    status                 - Show session status

  General:
    help                   - Show this help
    quit                   - Exit`)
}

func (c *Controller) cmdTrigger(ctx context.Context) error {
	if err := c.dev.TriggerImage(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Triggered")
	return nil
}

func (c *Controller) cmdCount(ctx context.Context) error {
	n, err := c.dev.TriggerImageObj(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Objects found: %d\n", n)
	return nil
}

func parseFrame(args []string) (int, error) {
	if len(args) == 0 {
		return int(pose.FrameSensor), nil
	}
	frame, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid frame %q", args[0])
	}
	return frame, nil
}

func (c *Controller) cmdPose(ctx context.Context, args []string) error {
	frame, err := parseFrame(args)
	if err != nil {
		return err
	}
	p, err := c.dev.GetObjectPose(ctx, frame)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, p.String())
	return nil
}

func (c *Controller) cmdPoses(ctx context.Context, args []string) error {
	frame, err := parseFrame(args)
	if err != nil {
		return err
	}
	poses, err := c.dev.Session().GetObjectPoses(ctx, pose.FrameID(frame))
	if err != nil {
		return err
	}
	for i, p := range poses {
		fmt.Fprintf(c.out, "  %d. %s\n", i+1, p.String())
	}
	return nil
}

func (c *Controller) cmdReady(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: ready on|off")
	}
	switch strings.ToLower(args[0]) {
	case "on", "1", "true":
		c.dev.OnHWReady(true)
	case "off", "0", "false":
		c.dev.OnHWReady(false)
	default:
		return fmt.Errorf("usage: ready on|off")
	}
	fmt.Fprintf(c.out, "Readiness: %s\n", c.dev.Session().Status().Readiness)
	return nil
}

func (c *Controller) cmdStatus() {
	st := c.dev.Session().Status()
	fmt.Fprintln(c.out, "Session Status:")
	fmt.Fprintf(c.out, "  State:      %s\n", st.State)
	fmt.Fprintf(c.out, "  Connection: %s\n", st.Connection)
	fmt.Fprintf(c.out, "  Readiness:  %s\n", st.Readiness)
	if st.Address != "" {
		fmt.Fprintf(c.out, "  Sensor:     %s\n", st.Address)
	}
	if st.Epoch != "" {
		fmt.Fprintf(c.out, "  Epoch:      %s\n", st.Epoch)
	}
	if st.Lost {
		fmt.Fprintln(c.out, "  Link lost, reconnect required")
	}
	if d := st.Detection; d != nil {
		if d.Known() {
			fmt.Fprintf(c.out, "  Detection:  %d object(s) at %s\n", d.Count, d.At.Format("15:04:05.000"))
		} else {
			fmt.Fprintf(c.out, "  Detection:  unknown count at %s\n", d.At.Format("15:04:05.000"))
		}
	}
	if st.State != session.StateActive {
		fmt.Fprintln(c.out, "  (not active: use 'activate')")
	}
}
