package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/and161185/gophchat/internal/model"
)

const timeLayout = "15:04:05"

func formatMessage(m model.Message) string {
	return fmt.Sprintf("[%s] %s: %s", m.Timestamp.Local().Format(timeLayout), m.Username, m.Content)
}

func formatRosterEntry(e model.RosterEntry) string {
	mark := " "
	if e.IsOnline {
		mark = "*"
	}
	return fmt.Sprintf("%s %s", mark, e.Username)
}

// renderer prints each message once and the presence line when it changes.
type renderer struct {
	out      io.Writer
	seen     map[int64]struct{}
	presence string
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out, seen: make(map[int64]struct{})}
}

func (r *renderer) render(vm model.ViewModel) {
	if vm.State != model.Authenticated {
		return
	}
	for _, m := range vm.Messages {
		if _, ok := r.seen[m.ID]; ok {
			continue
		}
		r.seen[m.ID] = struct{}{}
		fmt.Fprintln(r.out, formatMessage(m))
	}
	if len(vm.Roster) == 0 {
		return
	}
	if p := presenceLine(vm); p != r.presence {
		r.presence = p
		fmt.Fprintln(r.out, p)
	}
}

func presenceLine(vm model.ViewModel) string {
	names := make([]string, 0, vm.OnlineCount)
	for _, e := range vm.Roster {
		if e.IsOnline {
			names = append(names, e.Username)
		}
	}
	return fmt.Sprintf("* %d online: %s", vm.OnlineCount, strings.Join(names, ", "))
}
