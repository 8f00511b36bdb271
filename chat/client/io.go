package client

import (
	"bufio"
	"context"
	"dsbuild/chat"
	"dsbuild/process"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var ErrProcessStopped = errors.New("client process stopped")

var parseErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))

// Local is the side of a running client process its user holds.
type Local interface {
	Sender() chan<- process.Message
	Receiver() <-chan process.Message
	Stopped() <-chan struct{}
}

// RunIO asks the server for the status of the user, then passes the
// requests read from in to the process and prints what it tells the
// user to out. It returns when in ends, ctx is done or the process
// stops.
func RunIO(ctx context.Context, local Local, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	if err := pass(ctx, local, chat.Status()); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-local.Stopped():
			return ErrProcessStopped
		case err := <-readErr:
			return err
		case line := <-lines:
			if line == "" {
				continue
			}
			kind, err := Parse(line)
			if err != nil {
				fmt.Fprintln(out, parseErrorStyle.Render(err.Error()))
				continue
			}
			if err := pass(ctx, local, kind); err != nil {
				return err
			}
		case msg := <-local.Receiver():
			var info chat.Info
			if err := msg.Data(&info); err != nil {
				return err
			}
			fmt.Fprintln(out, info)
		}
	}
}

func pass(ctx context.Context, local Local, kind chat.RequestKind) error {
	select {
	case local.Sender() <- process.MessageFrom(kind):
		return nil
	case <-local.Stopped():
		return ErrProcessStopped
	case <-ctx.Done():
		return nil
	}
}
