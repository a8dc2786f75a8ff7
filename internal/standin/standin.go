// Package standin plays the automated side of a game.
package standin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wavelink-service/internal/domain"
	"wavelink-service/internal/matching"
)

// Prompt is everything the automated partner is told about a turn.
type Prompt struct {
	Seeds [2]string
	// Connecting holds the seed words on attempt 0, otherwise the last pair played.
	Connecting [2]string
	// Forbidden words may not be equal to, contain, or be contained in the answer.
	Forbidden []string
}

// Provider proposes a connecting word, e.g. by asking a language model.
type Provider interface {
	Propose(ctx context.Context, p Prompt) (string, error)
}

// StandIn bounds provider calls and enforces the submission rules on replies.
type StandIn struct {
	provider Provider
	timeout  time.Duration
	attempts int
}

func New(provider Provider, timeout time.Duration, attempts int) *StandIn {
	if attempts < 1 {
		attempts = 1
	}
	return &StandIn{provider: provider, timeout: timeout, attempts: attempts}
}

// Propose returns a valid word or an error wrapping domain.ErrStandInUnavailable.
func (s *StandIn) Propose(ctx context.Context, p Prompt) (string, error) {
	var lastErr error
	for i := 0; i < s.attempts; i++ {
		raw, err := s.call(ctx, p)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		word := Sanitize(raw)
		if err := matching.Validate(word, p.Seeds, p.Forbidden); err != nil {
			lastErr = err
			if word != "" {
				p.Forbidden = append(append([]string(nil), p.Forbidden...), word)
			}
			continue
		}
		return word, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no reply")
	}
	return "", fmt.Errorf("%w: %v", domain.ErrStandInUnavailable, lastErr)
}

func (s *StandIn) call(ctx context.Context, p Prompt) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.provider.Propose(ctx, p)
}

// Sanitize reduces a free-form reply to at most two cleaned tokens.
func Sanitize(reply string) string {
	for _, line := range strings.Split(reply, "\n") {
		line = strings.Trim(strings.TrimSpace(line), `"'`)
		tokens := strings.Fields(matching.Clean(line))
		if len(tokens) == 0 {
			continue
		}
		if len(tokens) > 2 {
			tokens = tokens[:2]
		}
		return strings.Join(tokens, " ")
	}
	return ""
}
