// SPDX-License-Identifier: Apache-2.0

package actor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jllopis/avalon/pkg/errors"
	"github.com/jllopis/avalon/pkg/history"
)

// ConsoleActor asks a person at a terminal. One instance can serve several
// seats since requests arrive one at a time.
type ConsoleActor struct {
	in      *bufio.Reader
	out     io.Writer
	timeout time.Duration
	history bool

	once  sync.Once
	lines chan string
}

// ConsoleOption configures the console actor.
type ConsoleOption func(*ConsoleActor)

// WithConsoleInput sets the input reader.
func WithConsoleInput(r io.Reader) ConsoleOption {
	return func(c *ConsoleActor) {
		if r != nil {
			c.in = bufio.NewReader(r)
		}
	}
}

// WithConsoleOutput sets the output writer.
func WithConsoleOutput(w io.Writer) ConsoleOption {
	return func(c *ConsoleActor) {
		if w != nil {
			c.out = w
		}
	}
}

// WithConsoleTimeout bounds the wait for each answer.
func WithConsoleTimeout(d time.Duration) ConsoleOption {
	return func(c *ConsoleActor) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithConsoleHistory prints the public record before each question.
func WithConsoleHistory(show bool) ConsoleOption {
	return func(c *ConsoleActor) { c.history = show }
}

// NewConsole creates a console actor on stdin/stdout.
func NewConsole(opts ...ConsoleOption) *ConsoleActor {
	c := &ConsoleActor{
		in:      bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		history: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit implements Actor.
func (c *ConsoleActor) Submit(ctx context.Context, req Request) (string, error) {
	c.once.Do(c.startReader)
	c.render(req)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	select {
	case <-ctx.Done():
		_, _ = fmt.Fprintln(c.out)
		if ctx.Err() == context.DeadlineExceeded {
			return "", errors.New(errors.CodeActorTimeout, "no answer typed in time", ctx.Err()).
				WithContext("seat", req.Seat)
		}
		return "", errors.New(errors.CodeContextLost, "console input canceled", ctx.Err())
	case line, ok := <-c.lines:
		if !ok {
			return "", errors.New(errors.CodeActorEmptyResponse, "console input closed", nil).
				WithContext("seat", req.Seat).
				WithRecoverable(false)
		}
		return strings.TrimSpace(line), nil
	}
}

// startReader pumps input lines so an abandoned question does not swallow
// the next answer.
func (c *ConsoleActor) startReader() {
	c.lines = make(chan string)
	go func() {
		defer close(c.lines)
		for {
			line, err := c.in.ReadString('\n')
			if line != "" || err == nil {
				c.lines <- line
			}
			if err != nil {
				return
			}
		}
	}()
}

func (c *ConsoleActor) render(req Request) {
	ctx := req.Context
	w := c.out
	_, _ = fmt.Fprintf(w, "\n=== %s: %s (round %d) ===\n", req.Seat, req.Kind, ctx.Round)
	_, _ = fmt.Fprintln(w, req.Knowledge.Describe())
	if c.history {
		_, _ = fmt.Fprintln(w, req.Public.Text())
	}
	if ctx.Status != "" {
		_, _ = fmt.Fprintln(w, ctx.Status)
	}
	if len(ctx.Team) > 0 {
		_, _ = fmt.Fprintf(w, "Team: %s (leader %s)\n", history.FormatTeam(ctx.Team), ctx.Leader)
	}
	for _, d := range ctx.Discussion {
		_, _ = fmt.Fprintf(w, "  %s: %s\n", d.Speaker, d.Text)
	}

	switch req.Kind {
	case KindPropose, KindFinalize:
		_, _ = fmt.Fprintf(w, "Pick %d of %s, comma separated: ", ctx.TeamSize, history.FormatTeam(ctx.Options))
	case KindDiscuss:
		_, _ = fmt.Fprint(w, "Your comment: ")
	default:
		_, _ = fmt.Fprintf(w, "Choose %s: ", strings.Join(ctx.Options, " / "))
	}
}

// Info implements Describer.
func (c *ConsoleActor) Info() Info {
	return Info{Type: "console", Interactive: true}
}
