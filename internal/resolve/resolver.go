// Package resolve turns raw terminal input into a structured command.
//
// Resolution is a pure function: it tokenizes plain input (respecting
// quoted substrings) and interprets the "!" natural-language shorthand
// against an ordered rule list. It never consults the command registry,
// so unknown bare command names are not an error here - detecting those
// is the dispatcher's job. This keeps the resolver side-effect free and
// independent of the registry's contents.
package resolve

import (
	"strings"

	apperrors "github.com/tabterm/host/internal/errors"
)

// ShorthandMarker is the prefix that switches input into natural-language
// mode. Everything after the marker is matched against the rule list.
const ShorthandMarker = '!'

// Command is the result of resolving one line of raw input.
// It is transient: produced here, consumed once by the dispatcher,
// never stored.
type Command struct {
	// Name is the canonical command name (e.g. "mkdir").
	Name string

	// Args are the command arguments in order.
	Args []string

	// Natural is true when the command came from the "!" shorthand.
	Natural bool
}

// IsNoop reports whether this is the empty-input sentinel.
// The dispatcher emits nothing for a no-op.
func (c Command) IsNoop() bool {
	return c.Name == ""
}

// Resolve maps raw input text to a structured command.
//
// Empty (or whitespace-only) input resolves to the no-op sentinel with a
// nil error. Input starting with the shorthand marker is interpreted as
// natural language; if no rule matches, a resolve.unrecognized_intent
// error is returned whose message carries a "did you mean" suggestion
// built from edit distance against the command vocabulary.
func Resolve(raw string) (Command, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Command{}, nil
	}

	if trimmed[0] == ShorthandMarker {
		text := strings.TrimSpace(trimmed[1:])
		if text == "" {
			return Command{}, nil
		}
		return interpretNatural(text)
	}

	tokens := Tokenize(trimmed)
	if len(tokens) == 0 {
		return Command{}, nil
	}

	var args []string
	if len(tokens) > 1 {
		args = tokens[1:]
	}
	return Command{
		Name: strings.ToLower(tokens[0]),
		Args: args,
	}, nil
}

// interpretNatural matches natural-language text against the rule list.
// Rules are evaluated in order and the first match wins; rule order is
// therefore part of the contract (and unit-tested).
func interpretNatural(text string) (Command, error) {
	lowered := strings.ToLower(text)

	for _, r := range rules {
		m := r.re.FindStringSubmatch(lowered)
		if m == nil {
			continue
		}

		// Collect named capture groups for template expansion.
		groups := make(map[string]string)
		for i, name := range r.re.SubexpNames() {
			if name != "" && i < len(m) {
				groups[name] = m[i]
			}
		}

		cmd := r.expand(groups)
		cmd.Natural = true
		return cmd, nil
	}

	suggestion := SuggestIntent(lowered)
	msg := "could not interpret: " + text
	if suggestion != "" {
		msg += " (did you mean: " + suggestion + "?)"
	}
	return Command{}, apperrors.New(apperrors.CodeResolveUnrecognizedIntent, msg)
}

// Tokenize splits input on whitespace while keeping quoted substrings
// together. Both single and double quotes group tokens; the quotes
// themselves are stripped. An unterminated quote runs to the end of the
// input rather than erroring, matching how interactive shells are
// forgiving about trailing input.
func Tokenize(input string) []string {
	var tokens []string
	var cur strings.Builder
	var quote rune // 0 when outside quotes
	inToken := false

	for _, r := range input {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inToken = true
		case r == ' ' || r == '\t':
			if inToken {
				tokens = append(tokens, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteRune(r)
			inToken = true
		}
	}
	if inToken {
		tokens = append(tokens, cur.String())
	}

	return tokens
}
