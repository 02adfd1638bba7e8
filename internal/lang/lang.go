// Package lang parses a textual command line into a graph.Command. It is
// one of the external collaborators spec.md keeps out of the core: the
// engine only ever sees already-parsed records.
package lang

import (
	"fmt"
	"strings"

	"github.com/google/shlex"

	"github.com/waoai/confidis/internal/graph"
)

// ParseError reports a malformed command line, including the offending
// line for a REPL to echo back.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse command %q: %s", e.Line, e.Reason)
}

func fail(line, format string, args ...any) error {
	return &ParseError{Line: line, Reason: fmt.Sprintf(format, args...)}
}

// Parse tokenizes one line with shell-style quoting rules (so an answer or
// config value can carry embedded spaces inside quotes) and builds the
// graph.Command it names.
//
// Grammar:
//
//	SET <question> <answer> FROM <source>
//	GET ANSWER TO <question>
//	GET SOURCE <source>
//	BELIEVE <source>
//	CONFIGURE <key> <value...>
//	TEST EQUALITY <answer1> <answer2>
//	GET ANSWERS TO <question>
func Parse(line string) (graph.Command, error) {
	items, err := shlex.Split(line)
	if err != nil {
		return graph.Command{}, fail(line, "tokenize: %v", err)
	}
	if len(items) == 0 {
		return graph.Command{}, fail(line, "empty command")
	}

	switch strings.ToUpper(items[0]) {
	case "SET":
		return parseSet(line, items)
	case "GET":
		return parseGet(line, items)
	case "BELIEVE":
		return parseBelieve(line, items)
	case "CONFIGURE":
		return parseConfigure(line, items)
	case "TEST":
		return parseTestEquality(line, items)
	default:
		return graph.Command{}, fail(line, "unknown command %q", items[0])
	}
}

func parseSet(line string, items []string) (graph.Command, error) {
	// SET <question> <answer> FROM <source>
	if len(items) != 5 || !strings.EqualFold(items[3], "FROM") {
		return graph.Command{}, fail(line, "expected SET <question> <answer> FROM <source>")
	}
	return graph.Command{Kind: graph.CmdSet, Question: items[1], Answer: items[2], Source: items[4]}, nil
}

func parseGet(line string, items []string) (graph.Command, error) {
	if len(items) < 2 {
		return graph.Command{}, fail(line, "expected GET ANSWER TO|ANSWERS TO|SOURCE ...")
	}
	switch strings.ToUpper(items[1]) {
	case "ANSWER":
		if len(items) != 4 || !strings.EqualFold(items[2], "TO") {
			return graph.Command{}, fail(line, "expected GET ANSWER TO <question>")
		}
		return graph.Command{Kind: graph.CmdGetAnswer, Question: items[3]}, nil
	case "ANSWERS":
		if len(items) != 4 || !strings.EqualFold(items[2], "TO") {
			return graph.Command{}, fail(line, "expected GET ANSWERS TO <question>")
		}
		return graph.Command{Kind: graph.CmdGetAnswers, Question: items[3]}, nil
	case "SOURCE":
		if len(items) != 3 {
			return graph.Command{}, fail(line, "expected GET SOURCE <source>")
		}
		return graph.Command{Kind: graph.CmdGetSource, Source: items[2]}, nil
	default:
		return graph.Command{}, fail(line, "expected GET ANSWER TO|ANSWERS TO|SOURCE, got %q", items[1])
	}
}

func parseBelieve(line string, items []string) (graph.Command, error) {
	if len(items) != 2 {
		return graph.Command{}, fail(line, "expected BELIEVE <source>")
	}
	return graph.Command{Kind: graph.CmdBelieve, Source: items[1]}, nil
}

func parseConfigure(line string, items []string) (graph.Command, error) {
	// CONFIGURE <key> <value...> — the value may itself be multiple
	// whitespace-separated key=val tokens (e.g. numeric_vec params), so
	// everything after the key is rejoined into one config_val string.
	if len(items) < 3 {
		return graph.Command{}, fail(line, "expected CONFIGURE <key> <value>")
	}
	return graph.Command{Kind: graph.CmdConfigure, ConfigKey: items[1], ConfigVal: strings.Join(items[2:], " ")}, nil
}

func parseTestEquality(line string, items []string) (graph.Command, error) {
	if len(items) != 4 || !strings.EqualFold(items[1], "EQUALITY") {
		return graph.Command{}, fail(line, "expected TEST EQUALITY <answer1> <answer2>")
	}
	return graph.Command{Kind: graph.CmdTestEquality, Answer1: items[2], Answer2: items[3]}, nil
}

// Render projects a graph.Response the way the REPL prints it (spec.md §6's
// canonical textual projection).
func Render(r graph.Response) string {
	switch r.Cmd {
	case graph.CmdGetAnswer:
		return fmt.Sprintf("%s (%.3f%%)", r.Answer, r.Confidence*100)
	case graph.CmdGetSource:
		return fmt.Sprintf("%.3f", r.Quality)
	case graph.CmdTestEquality:
		return fmt.Sprintf("%.3f", r.Distance)
	case graph.CmdGetAnswers:
		parts := make([]string, len(r.Answers))
		for i, a := range r.Answers {
			parts[i] = fmt.Sprintf("%s (%.3f%%)", a.Answer, a.Confidence*100)
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}
