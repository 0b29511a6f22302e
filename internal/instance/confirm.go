package instance

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/loykin/vmixpanel/internal/reaper"
)

// Choice is the operator answer to a port conflict.
type Choice int

const (
	Terminate Choice = iota + 1
	Cancel
)

func (c Choice) String() string {
	switch c {
	case Terminate:
		return "terminate"
	case Cancel:
		return "cancel"
	default:
		return fmt.Sprintf("choice(%d)", int(c))
	}
}

// ParseChoice accepts "T" or "C", case-insensitive, surrounding space ignored.
func ParseChoice(s string) (Choice, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "T":
		return Terminate, nil
	case "C":
		return Cancel, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidChoice, strings.TrimSpace(s))
}

// ConfirmSource decides how a port conflict is resolved.
type ConfirmSource interface {
	Confirm(ctx context.Context, port int, holders []reaper.Listener) (Choice, error)
}

// ConfirmFunc adapts a function to ConfirmSource.
type ConfirmFunc func(ctx context.Context, port int, holders []reaper.Listener) (Choice, error)

func (f ConfirmFunc) Confirm(ctx context.Context, port int, holders []reaper.Listener) (Choice, error) {
	return f(ctx, port, holders)
}

// Console prompts on out and reads a single answer line from in. There is no
// timeout; only ctx cancellation stops the wait.
type Console struct {
	in  *bufio.Reader
	out io.Writer
}

func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out}
}

func (c *Console) Confirm(ctx context.Context, port int, holders []reaper.Listener) (Choice, error) {
	fmt.Fprintf(c.out, "\nPort %d is already in use", port)
	if len(holders) > 0 {
		fmt.Fprint(c.out, " by:\n")
		for _, h := range holders {
			fmt.Fprintf(c.out, "  %s\n", h)
		}
	} else {
		fmt.Fprint(c.out, ".\n")
	}
	fmt.Fprint(c.out, "  T) terminate the running instance and start\n")
	fmt.Fprint(c.out, "  C) cancel\n")
	fmt.Fprint(c.out, "Choice [T/C]: ")

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := c.in.ReadString('\n')
		ch <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case a := <-ch:
		if a.err != nil && (!errors.Is(a.err, io.EOF) || a.line == "") {
			return 0, fmt.Errorf("read choice: %w", a.err)
		}
		return ParseChoice(a.line)
	}
}
