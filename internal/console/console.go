package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"toolbox/internal/display"
	"toolbox/internal/metrics"
)

const helpText = `Commands:
  status        show the enterprise report
  workers <n>   change the wished worker count
  pause         postpone new missions
  resume        allow new missions
  stop          forbid new missions and close down
  errors        list recorded exceptions
  help          show this help
  exit          leave the console, the enterprise keeps running`

// Controller is the part of an enterprise the console drives.
type Controller interface {
	SetWishedWorkersCount(n int) error
	AllowNewMissionsStart()
	PostponeNewMissionsStart()
	ForbidForeverNewMissionsStart()
	Snapshot() *metrics.EnterpriseMetrics
	Exceptions() []error
}

var errQuit = errors.New("quit")

// Execute runs one console command against ctl and returns the reply.
func Execute(ctl Controller, line string) (string, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(line)))
	if len(fields) == 0 {
		return "", nil
	}

	switch fields[0] {
	case "status":
		return display.FormatEnterpriseMetrics(ctl.Snapshot()), nil
	case "workers":
		if len(fields) != 2 {
			return "", fmt.Errorf("usage: workers <n>")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			return "", fmt.Errorf("worker count must be a positive integer, got %q", fields[1])
		}
		if err := ctl.SetWishedWorkersCount(n); err != nil {
			return "", err
		}
		return fmt.Sprintf("Wished worker count set to %d.", n), nil
	case "pause":
		ctl.PostponeNewMissionsStart()
		return "New missions postponed.", nil
	case "resume":
		ctl.AllowNewMissionsStart()
		return "New missions allowed.", nil
	case "stop":
		ctl.ForbidForeverNewMissionsStart()
		return "New missions forbidden, closing down.", nil
	case "errors":
		return display.FormatExceptions(ctl.Exceptions(), -1), nil
	case "help", "?":
		return helpText, nil
	case "exit", "quit":
		return "", errQuit
	default:
		return "", fmt.Errorf("unknown command %q (type 'help')", fields[0])
	}
}

// Console reads commands from the terminal while an enterprise runs.
type Console struct {
	mu sync.Mutex
	rl *readline.Instance
}

func New() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "dispatch> ",
		InterruptPrompt: "",
		EOFPrompt:       "",
	})
	if err != nil {
		return nil, err
	}
	return &Console{rl: rl}, nil
}

// Println prints above the prompt without breaking the current input.
func (c *Console) Println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.rl.Write([]byte("\r\n" + s + "\r\n"))
	c.rl.Refresh()
}

func (c *Console) Close() {
	_ = c.rl.Close()
}

// Run serves commands until exit, end of input or ctx is done.
func (c *Console) Run(ctx context.Context, ctl Controller) error {
	stop := context.AfterFunc(ctx, c.Close)
	defer stop()

	c.Println("Type 'help' for commands.")
	for {
		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				// Raw mode swallows SIGINT, so Ctrl+C drains from here.
				ctl.ForbidForeverNewMissionsStart()
				return nil
			}
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		reply, err := Execute(ctl, line)
		switch {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			c.Println(fmt.Sprintf("[error] %v", err))
		case reply != "":
			c.Println(reply)
		}
	}
}
