// Package prompt asks the terminal user for confirmations and input.
package prompt

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/manifoldco/promptui"

	"tableflip.dev/shopdesk/pkg/app"
)

// Terminal prompts on In and Out. With Yes set every confirmation is
// accepted without asking.
type Terminal struct {
	In  io.Reader
	Out io.Writer
	Yes bool
}

var _ app.Confirmer = (*Terminal)(nil)

// Confirm shows a yes/no prompt. Answering no, or interrupting, declines.
func (t *Terminal) Confirm(_ context.Context, c app.Confirmation) (bool, error) {
	if t.Yes {
		return true, nil
	}
	label := c.Title
	if c.Text != "" {
		label = c.Title + " " + c.Text
	}
	p := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Stdin:     t.stdin(),
		Stdout:    t.stdout(),
	}
	_, err := p.Run()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, promptui.ErrAbort), errors.Is(err, promptui.ErrInterrupt), errors.Is(err, promptui.ErrEOF):
		return false, nil
	}
	return false, err
}

// Text asks for a line of input. Empty answers fall back to def.
func (t *Terminal) Text(label, def string) (string, error) {
	templates := &promptui.PromptTemplates{
		Prompt:  "{{ . }}: ",
		Valid:   "{{ . | green }}: ",
		Invalid: "{{ . | red }}: ",
		Success: "{{ . | bold }}: ",
	}
	p := promptui.Prompt{
		Label:     label,
		Default:   def,
		Templates: templates,
		Stdin:     t.stdin(),
		Stdout:    t.stdout(),
	}
	out, err := p.Run()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Secret asks for input without echoing it.
func (t *Terminal) Secret(label string) (string, error) {
	p := promptui.Prompt{
		Label:  label,
		Mask:   '*',
		Stdin:  t.stdin(),
		Stdout: t.stdout(),
	}
	return p.Run()
}

func (t *Terminal) stdin() io.ReadCloser {
	if t.In == nil {
		return nil
	}
	return io.NopCloser(t.In)
}

func (t *Terminal) stdout() io.WriteCloser {
	if t.Out == nil {
		return nil
	}
	return writeNopCloser{t.Out}
}

type writeNopCloser struct {
	io.Writer
}

func (writeNopCloser) Close() error { return nil }
