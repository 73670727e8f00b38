// Package handoff decides whether conversation control should move between
// the automated bot and a human agent based on inbound message content.
package handoff

import (
	"regexp"
	"strings"

	"github.com/pagebridge/pagebridge/internal/activity"
)

// Target identifies who should control the conversation after recognition.
type Target string

const (
	TargetNone  Target = "none"
	TargetBot   Target = "bot"
	TargetAgent Target = "agent"
)

// String returns the target as a plain string.
func (t Target) String() string {
	return string(t)
}

// Recognizer classifies an inbound activity into a handoff verdict.
// Implementations must be side-effect-free and must not panic for any
// well-formed activity; unrecognized content yields TargetNone.
type Recognizer interface {
	Recognize(a activity.Activity) Target
}

// PatternRecognizer matches message text against configurable phrase patterns.
type PatternRecognizer struct {
	agentPatterns []*regexp.Regexp
	botPatterns   []*regexp.Regexp
}

var (
	defaultAgentPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\btalk to (a|an)? ?(human|agent|person)\b`),
		regexp.MustCompile(`(?i)\bhuman agent\b`),
		regexp.MustCompile(`(?i)\breal person\b`),
	}
	defaultBotPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bback to (the )?bot\b`),
		regexp.MustCompile(`(?i)\bresume bot\b`),
	}
)

// NewPatternRecognizer creates a recognizer with the built-in phrase patterns.
func NewPatternRecognizer() *PatternRecognizer {
	return &PatternRecognizer{
		agentPatterns: defaultAgentPatterns,
		botPatterns:   defaultBotPatterns,
	}
}

// NewPatternRecognizerWithPatterns creates a recognizer from caller-supplied
// pattern sets. Empty sets fall back to the built-in defaults.
func NewPatternRecognizerWithPatterns(agent, bot []*regexp.Regexp) *PatternRecognizer {
	r := NewPatternRecognizer()
	if len(agent) > 0 {
		r.agentPatterns = agent
	}
	if len(bot) > 0 {
		r.botPatterns = bot
	}
	return r
}

// Recognize returns the handoff verdict for the given activity. Agent patterns
// win over bot patterns when both match.
func (r *PatternRecognizer) Recognize(a activity.Activity) Target {
	text := strings.TrimSpace(a.Text)
	if text == "" {
		return TargetNone
	}
	for _, pattern := range r.agentPatterns {
		if pattern.MatchString(text) {
			return TargetAgent
		}
	}
	for _, pattern := range r.botPatterns {
		if pattern.MatchString(text) {
			return TargetBot
		}
	}
	return TargetNone
}
