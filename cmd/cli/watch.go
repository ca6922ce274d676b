package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/and161185/gophchat/internal/chat"
	"github.com/and161185/gophchat/internal/errs"
)

func withTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), d)
}

// runWatch renders controller updates and sends stdin lines until /quit, /logout, EOF or ctx ends.
// A failed send keeps its text as the draft; /retry sends the draft again.
func runWatch(ctx context.Context, ctl *chat.Controller, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	r := newRenderer(out)
	r.render(ctl.ViewModel())
	var draft string
	for {
		select {
		case <-ctx.Done():
			return nil
		case vm := <-ctl.Updates():
			r.render(vm)
		case line, ok := <-lines:
			if !ok {
				r.render(ctl.ViewModel())
				return nil
			}
			switch cmd := strings.TrimSpace(line); cmd {
			case "":
				continue
			case "/quit":
				r.render(ctl.ViewModel())
				return nil
			case "/logout":
				ctl.Logout(ctx)
				fmt.Fprintln(out, "logged out")
				return nil
			case "/retry":
				if draft == "" {
					fmt.Fprintln(out, "nothing to retry")
					continue
				}
				draft = send(ctx, ctl, out, draft)
			default:
				draft = send(ctx, ctl, out, line)
			}
			r.render(ctl.ViewModel())
		}
	}
}

// send posts text and returns the draft to keep: empty on success, text on failure.
func send(ctx context.Context, ctl *chat.Controller, out io.Writer, text string) string {
	_, err := ctl.Send(ctx, text)
	if err == nil {
		return ""
	}
	if errors.Is(err, errs.ErrUnauthorized) {
		fmt.Fprintf(out, "! %v, draft kept\n", errNotLoggedIn)
		return text
	}
	fmt.Fprintf(out, "! send failed: %v (draft kept, /retry to resend)\n", err)
	return text
}
