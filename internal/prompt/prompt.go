// Package prompt collects answers to clarification questions from a human
// at the terminal.
package prompt

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"

	"github.com/ziadkadry99/hitl/internal/clarify"
)

// DefaultConfidence is offered when the human does not state one.
const DefaultConfidence = 0.8

// Answer is one human reply.
type Answer struct {
	Text       string
	Confidence float64
}

// Collector asks questions interactively. Nil streams use the terminal.
type Collector struct {
	Stdin  io.ReadCloser
	Stdout io.WriteCloser
}

// Ask presents q and returns the answer with the human's confidence in it.
// Questions with options are shown as a selection list.
func (c *Collector) Ask(q clarify.Question) (Answer, error) {
	text, err := c.answer(q)
	if err != nil {
		return Answer{}, fmt.Errorf("question prompt: %w", err)
	}

	p := promptui.Prompt{
		Label:    "How confident are you (0-1)",
		Default:  strconv.FormatFloat(DefaultConfidence, 'f', -1, 64),
		Validate: validateConfidence,
		Stdin:    c.Stdin,
		Stdout:   c.Stdout,
	}
	raw, err := p.Run()
	if err != nil {
		return Answer{}, fmt.Errorf("confidence prompt: %w", err)
	}
	conf, _ := parseConfidence(raw)
	return Answer{Text: text, Confidence: conf}, nil
}

func (c *Collector) answer(q clarify.Question) (string, error) {
	if len(q.Options) > 0 {
		s := promptui.Select{
			Label:  Label(q),
			Items:  q.Options,
			Stdin:  c.Stdin,
			Stdout: c.Stdout,
		}
		_, choice, err := s.Run()
		return choice, err
	}
	p := promptui.Prompt{
		Label:    Label(q),
		Validate: validateAnswer,
		Stdin:    c.Stdin,
		Stdout:   c.Stdout,
	}
	return p.Run()
}

// Label renders a question with its hint.
func Label(q clarify.Question) string {
	if q.ContextHint == "" {
		return q.Text
	}
	return fmt.Sprintf("%s (%s)", q.Text, q.ContextHint)
}

func validateAnswer(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("answer cannot be empty")
	}
	return nil
}

func parseConfidence(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errors.New("enter a number between 0 and 1")
	}
	if v < 0 || v > 1 {
		return 0, errors.New("confidence must be between 0 and 1")
	}
	return v, nil
}

func validateConfidence(s string) error {
	_, err := parseConfidence(s)
	return err
}
