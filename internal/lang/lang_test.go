package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waoai/confidis/internal/graph"
)

func TestParseSet(t *testing.T) {
	cmd, err := Parse("SET q1 a FROM s1")
	require.NoError(t, err)
	assert.Equal(t, graph.Command{Kind: graph.CmdSet, Question: "q1", Answer: "a", Source: "s1"}, cmd)
}

func TestParseSetQuotedAnswer(t *testing.T) {
	cmd, err := Parse(`SET q1 "two words" FROM s1`)
	require.NoError(t, err)
	assert.Equal(t, "two words", cmd.Answer)
}

func TestParseGetAnswer(t *testing.T) {
	cmd, err := Parse("GET ANSWER TO q1")
	require.NoError(t, err)
	assert.Equal(t, graph.Command{Kind: graph.CmdGetAnswer, Question: "q1"}, cmd)
}

func TestParseGetAnswers(t *testing.T) {
	cmd, err := Parse("GET ANSWERS TO q2")
	require.NoError(t, err)
	assert.Equal(t, graph.Command{Kind: graph.CmdGetAnswers, Question: "q2"}, cmd)
}

func TestParseGetSource(t *testing.T) {
	cmd, err := Parse("GET SOURCE s1")
	require.NoError(t, err)
	assert.Equal(t, graph.Command{Kind: graph.CmdGetSource, Source: "s1"}, cmd)
}

func TestParseBelieve(t *testing.T) {
	cmd, err := Parse("BELIEVE s4")
	require.NoError(t, err)
	assert.Equal(t, graph.Command{Kind: graph.CmdBelieve, Source: "s4"}, cmd)
}

func TestParseConfigure(t *testing.T) {
	cmd, err := Parse("CONFIGURE comparison_method numeric_vec allowed_difference=1.0 vec_length=2 diff_fn=l1")
	require.NoError(t, err)
	assert.Equal(t, graph.CmdConfigure, cmd.Kind)
	assert.Equal(t, "comparison_method", cmd.ConfigKey)
	assert.Equal(t, "numeric_vec allowed_difference=1.0 vec_length=2 diff_fn=l1", cmd.ConfigVal)
}

func TestParseTestEquality(t *testing.T) {
	cmd, err := Parse("TEST EQUALITY a b")
	require.NoError(t, err)
	assert.Equal(t, graph.Command{Kind: graph.CmdTestEquality, Answer1: "a", Answer2: "b"}, cmd)
}

func TestParseCaseInsensitive(t *testing.T) {
	cmd, err := Parse("set q1 a from s1")
	require.NoError(t, err)
	assert.Equal(t, graph.CmdSet, cmd.Kind)
}

func TestParseUnknownCommand(t *testing.T) {
	_, err := Parse("FROB q1")
	require.Error(t, err)
	assert.ErrorContains(t, err, "unknown command")
}

func TestParseMalformedSet(t *testing.T) {
	_, err := Parse("SET q1 a WITH s1")
	require.Error(t, err)
}

func TestParseEmptyLine(t *testing.T) {
	_, err := Parse("   ")
	require.Error(t, err)
}

func TestRenderGetAnswer(t *testing.T) {
	s := Render(graph.Response{Cmd: graph.CmdGetAnswer, Answer: "a", Confidence: 0.95885})
	assert.Equal(t, "a (95.885%)", s)
}

func TestRenderGetAnswers(t *testing.T) {
	s := Render(graph.Response{Cmd: graph.CmdGetAnswers, Answers: []graph.AnswerConfidence{
		{Answer: "b", Confidence: 0.98215},
		{Answer: "c", Confidence: 0.50379},
		{Answer: "w", Confidence: 0.999},
	}})
	assert.Equal(t, "b (98.215%), c (50.379%), w (99.900%)", s)
}
