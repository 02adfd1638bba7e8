package graph

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waoai/confidis/internal/model"
)

func TestSourceAndQuestionInvariants(t *testing.T) {
	e := New(nil)

	for i := 0; i < 20; i++ {
		_, err := e.ExecuteCommand(Command{Kind: CmdSet, Question: "q", Answer: "a", Source: "s1"})
		require.NoError(t, err)
		_, err = e.ExecuteCommand(Command{Kind: CmdSet, Question: "q", Answer: "b", Source: "s2"})
		require.NoError(t, err)
	}

	for _, s := range e.sources {
		assert.GreaterOrEqual(t, s.Quality, 0.0)
		assert.LessOrEqual(t, s.Quality, 1.0)
		assert.GreaterOrEqual(t, s.Strength, 0.0)
		assert.LessOrEqual(t, s.Strength, e.cfg.MaximumStrength)
	}
	for _, q := range e.questions {
		assert.GreaterOrEqual(t, q.Confidence, 0.0)
		assert.LessOrEqual(t, q.Confidence, 1.0)
		assert.GreaterOrEqual(t, q.Weight, 0.0)
	}
}

func TestSetThenGetAnswerIsNonNone(t *testing.T) {
	e := New(nil)
	_, err := e.ExecuteCommand(Command{Kind: CmdSet, Question: "q1", Answer: "a", Source: "s1"})
	require.NoError(t, err)

	resp, err := e.ExecuteCommand(Command{Kind: CmdGetAnswer, Question: "q1"})
	require.NoError(t, err)
	assert.Equal(t, "a", resp.Answer)
}

func TestGetAnswerOnUnknownQuestionIsNone(t *testing.T) {
	e := New(nil)
	resp, err := e.ExecuteCommand(Command{Kind: CmdGetAnswer, Question: "never-seen"})
	require.NoError(t, err)
	assert.Equal(t, "None", resp.Answer)
	assert.Equal(t, 0.0, resp.Confidence)
}

func TestBelieveSetsQuality(t *testing.T) {
	e := New(nil)
	_, err := e.ExecuteCommand(Command{Kind: CmdBelieve, Source: "s1"})
	require.NoError(t, err)

	resp, err := e.ExecuteCommand(Command{Kind: CmdGetSource, Source: "s1"})
	require.NoError(t, err)
	assert.Equal(t, e.cfg.QualityOfBelievedSources, resp.Quality)
}

func TestEqualityIdentityIsZero(t *testing.T) {
	e := New(nil)
	resp, err := e.ExecuteCommand(Command{Kind: CmdTestEquality, Answer1: "hello", Answer2: "hello"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, resp.Distance)

	_, err = e.ExecuteCommand(Command{
		Kind:      CmdConfigure,
		ConfigKey: "comparison_method",
		ConfigVal: "numeric max_distance=10",
	})
	require.NoError(t, err)
	resp, err = e.ExecuteCommand(Command{Kind: CmdTestEquality, Answer1: "3.5", Answer2: "3.5"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, resp.Distance)
}

func TestRepeatedGetAnswerIsIdempotent(t *testing.T) {
	e := New(nil)
	_, err := e.ExecuteCommand(Command{Kind: CmdSet, Question: "q1", Answer: "a", Source: "s1"})
	require.NoError(t, err)
	_, err = e.ExecuteCommand(Command{Kind: CmdSet, Question: "q1", Answer: "a", Source: "s2"})
	require.NoError(t, err)

	first, err := e.ExecuteCommand(Command{Kind: CmdGetAnswer, Question: "q1"})
	require.NoError(t, err)
	second, err := e.ExecuteCommand(Command{Kind: CmdGetAnswer, Question: "q1"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestConfigureUnknownKey(t *testing.T) {
	e := New(nil)
	before := e.cfg
	_, err := e.ExecuteCommand(Command{Kind: CmdConfigure, ConfigKey: "bogus", ConfigVal: "1"})
	require.Error(t, err)
	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, ErrConfigUnknownKey, gerr.Kind)
	assert.Equal(t, before, e.cfg)
}

func TestConfigureUnknownMethod(t *testing.T) {
	e := New(nil)
	_, err := e.ExecuteCommand(Command{Kind: CmdConfigure, ConfigKey: "comparison_method", ConfigVal: "bogus"})
	require.Error(t, err)
	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, ErrConfigUnknownMethod, gerr.Kind)
}

func TestConfigureNumericMissingParameter(t *testing.T) {
	e := New(nil)
	_, err := e.ExecuteCommand(Command{Kind: CmdConfigure, ConfigKey: "comparison_method", ConfigVal: "numeric"})
	require.Error(t, err)
	assert.ErrorIs(t, err, &Error{Kind: ErrConfigMissingParameter})
}

func TestConfigureNumericVecInstallsStrategy(t *testing.T) {
	e := New(nil)
	_, err := e.ExecuteCommand(Command{
		Kind:      CmdConfigure,
		ConfigKey: "comparison_method",
		ConfigVal: "numeric_vec allowed_difference=1.0 vec_length=2 diff_fn=l1",
	})
	require.NoError(t, err)

	resp, err := e.ExecuteCommand(Command{Kind: CmdTestEquality, Answer1: "1.0,2.0", Answer2: "1.1,2.1"})
	require.NoError(t, err)
	assert.InDelta(t, 0.2, resp.Distance, 1e-9)
}

func TestNumericInstabilityRecovery(t *testing.T) {
	e := New(nil)
	q := e.getOrCreateQuestion("q1")
	q.Answers = append(q.Answers, model.NewAnswer("a", "s1"), model.NewAnswer("b", "s2"))
	q.CorrectAnswers = []model.Answer{q.Answers[0]}
	q.Weight = 1.0

	s1 := e.getOrCreateSource("s1")
	s1.Strength = 1.0 // equals q.Weight: strength==weight triggers the recovery path
	s2 := e.getOrCreateSource("s2")
	s2.Strength = 5.0

	e.removeQuestionEffect(q)

	assert.Equal(t, e.cfg.DefaultSourceQuality, s1.Quality)
	assert.Equal(t, e.cfg.InitialSourceStrength, s1.Strength)
	assert.False(t, math.IsNaN(s2.Quality))
}
