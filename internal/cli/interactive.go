package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/rootcause/internal/narrow"
)

// ErrAborted is returned when the input ends before the dialogue does.
var ErrAborted = errors.New("dialogue aborted")

// RunDialogue asks the dialogue's questions on out and reads y/n/s answers from in until
// the dialogue is done. Unrecognized input is asked again.
func RunDialogue(ctx context.Context, in io.Reader, out io.Writer, d *narrow.Dialogue, p narrow.QuestionProposer) error {
	scanner := bufio.NewScanner(in)
	q, err := d.Next(ctx, p)
	if err != nil {
		return err
	}
	for q != nil {
		answer, err := ask(scanner, out, len(d.Asked())+1, q)
		if err != nil {
			return err
		}
		if q, err = d.Respond(ctx, p, answer); err != nil {
			return err
		}
	}
	return nil
}

func ask(scanner *bufio.Scanner, out io.Writer, turn int, q *narrow.Proposal) (narrow.Answer, error) {
	for {
		fmt.Fprintf(out, "\nQ%d: %s\n", turn, q.Question)
		if q.Rationale != "" {
			fmt.Fprintf(out, "    (%s)\n", q.Rationale)
		}
		fmt.Fprint(out, "[y]es / [n]o / [s]kip > ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", ErrAborted
		}
		a, err := narrow.ParseAnswer(scanner.Text())
		if err == nil {
			return a, nil
		}
		fmt.Fprintf(out, "Please answer y, n or s (got %q).\n", strings.TrimSpace(scanner.Text()))
	}
}
