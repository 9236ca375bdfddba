package main

import (
	"fmt"
	"io"
	"strings"

	qaboard "github.com/qaboard/qaboard/sdk/golang"
)

// renderQuestions prints one line per question, with its answer indented
// underneath when there is one.
func renderQuestions(w io.Writer, qs []qaboard.Question) {
	if len(qs) == 0 {
		fmt.Fprintln(w, "No questions found.")
		return
	}
	for _, q := range qs {
		fmt.Fprintf(w, "#%-4d %-9s %s  %s\n", q.ID, q.Status, q.Timestamp, q.Message)
		if q.Answer != nil && *q.Answer != "" {
			fmt.Fprintf(w, "      -> %s\n", *q.Answer)
		}
	}
}

// renderChange prints a change that modified the watched window.
func renderChange(w io.Writer, ch qaboard.Change) {
	switch ch.Kind {
	case qaboard.ChangeCreated:
		q := ch.Question
		fmt.Fprintf(w, "+ #%d %s  %s\n", q.ID, q.Status, q.Message)
	case qaboard.ChangeUpdated:
		p := ch.Patch
		var parts []string
		if p.Status != nil {
			parts = append(parts, "status="+string(*p.Status))
		}
		if p.Message != nil {
			parts = append(parts, fmt.Sprintf("message=%q", *p.Message))
		}
		if p.Answer != nil {
			parts = append(parts, fmt.Sprintf("answer=%q", *p.Answer))
		}
		if len(parts) == 0 {
			parts = append(parts, "updated")
		}
		fmt.Fprintf(w, "~ #%d %s\n", ch.ID, strings.Join(parts, " "))
	case qaboard.ChangeDeleted:
		fmt.Fprintf(w, "- #%d deleted\n", ch.ID)
	}
}

// renderState prints live/offline transitions of the realtime channel.
func renderState(w io.Writer, s qaboard.RealtimeState) {
	switch s {
	case qaboard.StateConnected:
		fmt.Fprintln(w, "-- live")
	case qaboard.StateReconnecting:
		fmt.Fprintln(w, "-- offline, reconnecting")
	}
}
