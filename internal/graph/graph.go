// Package graph implements the belief engine: the source and question
// tables, the similarity-driven clustering of answers, the bidirectional
// quality/confidence update protocol between sources and questions, and the
// command dispatcher that drives all of it.
//
// The engine holds no locks and starts no goroutines. Exactly one command
// executes at a time; a multi-threaded host must serialize calls to
// ExecuteCommand itself.
package graph

import (
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/waoai/confidis/internal/cluster"
	"github.com/waoai/confidis/internal/model"
	"github.com/waoai/confidis/internal/similarity"
)

// Config holds the engine's tunables. Changing a tunable never retroactively
// recomputes existing questions: DefaultSourceQuality and
// InitialSourceStrength apply to sources created afterwards, while
// MaximumStrength and LogWeightFactor take effect on the next update cycle.
type Config struct {
	DefaultSourceQuality     float64
	InitialSourceStrength    float64
	MaximumStrength          float64
	LogWeightFactor          float64
	QualityOfBelievedSources float64
}

// DefaultConfig returns the engine's initial tunables.
func DefaultConfig() Config {
	return Config{
		DefaultSourceQuality:     0.5,
		InitialSourceStrength:    1.0,
		MaximumStrength:          100.0,
		LogWeightFactor:          10.0,
		QualityOfBelievedSources: 0.999,
	}
}

// Engine owns the belief graph: every source and question ever referenced,
// the active similarity strategy, and the tunables governing new entities
// and update math.
type Engine struct {
	cfg       Config
	eq        similarity.Equalifier
	sources   map[string]*model.Source
	questions map[string]*model.Question
	logger    *slog.Logger
}

// New constructs an Engine with default tunables and the exact-match
// similarity strategy, matching a freshly started belief graph.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		cfg:       DefaultConfig(),
		eq:        similarity.Exact{},
		sources:   make(map[string]*model.Source),
		questions: make(map[string]*model.Question),
		logger:    logger,
	}
	e.registerMetrics()
	return e
}

// SetEqualifier installs a similarity strategy directly, bypassing the
// textual CONFIGURE command. Embedders use this to supply a strategy the
// command language has no syntax for.
func (e *Engine) SetEqualifier(eq similarity.Equalifier) {
	e.eq = eq
}

// Snapshot returns a copy of every known source and question, for
// point-in-time persistence. Callers must not rely on map iteration order.
func (e *Engine) Snapshot() ([]model.Source, []model.Question) {
	sources := make([]model.Source, 0, len(e.sources))
	for _, s := range e.sources {
		sources = append(sources, *s)
	}
	questions := make([]model.Question, 0, len(e.questions))
	for _, q := range e.questions {
		questions = append(questions, *q)
	}
	return sources, questions
}

func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return v
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func (e *Engine) getOrCreateSource(name string) *model.Source {
	s, ok := e.sources[name]
	if !ok {
		s = &model.Source{
			Name:     name,
			Quality:  e.cfg.DefaultSourceQuality,
			Strength: e.cfg.InitialSourceStrength,
		}
		e.sources[name] = s
	}
	return s
}

func (e *Engine) getOrCreateQuestion(name string) *model.Question {
	q, ok := e.questions[name]
	if !ok {
		q = &model.Question{Name: name}
		e.questions[name] = q
	}
	return q
}

// removeQuestionEffect reverses the feedback this question last exerted on
// its contributing sources (spec §4.6 phase 1). If a source's accumulated
// strength exactly equals the weight being withdrawn, the division is
// undefined; rather than produce NaN, the source is reset as if newly
// created (the NumericInstability recovery path).
func (e *Engine) removeQuestionEffect(q *model.Question) {
	correct := q.CorrectHashes()
	w := q.Weight
	for _, a := range q.Answers {
		s := e.getOrCreateSource(a.Source)
		c := 0.0
		if _, ok := correct[a.Hash]; ok {
			c = 1.0
		}
		if s.Strength == w {
			e.logger.Debug("numeric instability on remove, resetting source",
				"source", s.Name, "question", q.Name)
			s.Quality = e.cfg.DefaultSourceQuality
			s.Strength = e.cfg.InitialSourceStrength
			continue
		}
		s.Quality = clampUnit((s.Quality*s.Strength - w*c) / (s.Strength - w))
		s.Strength -= w
	}
}

// addQuestionEffect applies the question's freshly recomputed feedback to
// its contributing sources (spec §4.6 phase 3).
func (e *Engine) addQuestionEffect(q *model.Question) {
	correct := q.CorrectHashes()
	w := q.Weight
	for _, a := range q.Answers {
		s := e.getOrCreateSource(a.Source)
		c := 0.0
		if _, ok := correct[a.Hash]; ok {
			c = 1.0
		}
		denom := s.Strength + w
		if denom != 0 {
			s.Quality = clampUnit((s.Quality*s.Strength + w*c) / denom)
		}
		s.Strength = math.Min(s.Strength+w, e.cfg.MaximumStrength)
	}
}

// clusterConfidence implements spec §4.5: the independent-error model where
// a cluster is wrong only if every contributor is wrong.
func (e *Engine) clusterConfidence(members []int, answers []model.Answer) float64 {
	incorrectChance := 1.0
	for _, idx := range members {
		s := e.getOrCreateSource(answers[idx].Source)
		incorrectChance *= 1 - s.Quality
	}
	return 1 - incorrectChance
}

// recompute runs the clusterer and confidence computation over a question's
// current answer set (spec §4.6 phase 2), updating CorrectAnswers,
// Confidence, and Weight in place.
func (e *Engine) recompute(q *model.Question) {
	clusters := cluster.Compute(q.Answers, e.eq)
	if len(clusters) == 0 {
		q.CorrectAnswers = nil
		q.Confidence = 0
		q.Weight = 0
		return
	}

	confidences := make([]float64, len(clusters))
	bestIdx := 0
	for i, members := range clusters {
		confidences[i] = e.clusterConfidence(members, q.Answers)
		if confidences[i] > confidences[bestIdx] {
			bestIdx = i
		}
	}

	best := clusters[bestIdx]
	correct := make([]model.Answer, 0, len(best))
	for _, idx := range best {
		correct = append(correct, q.Answers[idx])
	}
	q.CorrectAnswers = correct
	q.Confidence = confidences[bestIdx]

	if len(correct) <= 1 {
		q.Weight = 0
		return
	}
	q.Weight = -math.Log(1-q.Confidence) / math.Log(e.cfg.LogWeightFactor)
}

// applyUpdate runs the full three-phase protocol against a question: remove
// its current effect on sources, recompute its clusters, then re-apply the
// new effect. Every write to a question goes through this.
func (e *Engine) applyUpdate(q *model.Question) {
	e.removeQuestionEffect(q)
	e.recompute(q)
	e.addQuestionEffect(q)
}

// clusterAnalysis is the shape GetAnswers needs: the partition and each
// cluster's confidence, without mutating the question.
type clusterAnalysis struct {
	clusters    [][]int
	confidences []float64
}

func (e *Engine) analyze(q *model.Question) clusterAnalysis {
	clusters := cluster.Compute(q.Answers, e.eq)
	confidences := make([]float64, len(clusters))
	for i, members := range clusters {
		confidences[i] = e.clusterConfidence(members, q.Answers)
	}
	return clusterAnalysis{clusters: clusters, confidences: confidences}
}

// ExecuteCommand dispatches a parsed command to the appropriate engine
// operation (spec §4.7). It returns a non-nil error only for a malformed
// Configure command or an unknown command kind; the engine state is
// unchanged in either case.
func (e *Engine) ExecuteCommand(cmd Command) (Response, error) {
	switch cmd.Kind {
	case CmdSet:
		return e.doSet(cmd)
	case CmdGetAnswer:
		return e.doGetAnswer(cmd)
	case CmdGetSource:
		return e.doGetSource(cmd)
	case CmdBelieve:
		return e.doBelieve(cmd)
	case CmdConfigure:
		return e.doConfigure(cmd)
	case CmdTestEquality:
		return e.doTestEquality(cmd)
	case CmdGetAnswers:
		return e.doGetAnswers(cmd)
	default:
		return Response{}, newError(ErrNotImplemented, "unhandled command kind %q", cmd.Kind)
	}
}

func (e *Engine) doSet(cmd Command) (Response, error) {
	e.getOrCreateSource(cmd.Source)
	q := e.getOrCreateQuestion(cmd.Question)

	e.removeQuestionEffect(q)
	q.Answers = append(q.Answers, model.NewAnswer(cmd.Answer, cmd.Source))
	e.recompute(q)
	e.addQuestionEffect(q)

	return Response{Cmd: CmdSet}, nil
}

func (e *Engine) doGetAnswer(cmd Command) (Response, error) {
	q := e.getOrCreateQuestion(cmd.Question)
	e.applyUpdate(q)

	answer := "None"
	if len(q.CorrectAnswers) > 0 {
		answer = q.CorrectAnswers[0].Content
	}
	return Response{Cmd: CmdGetAnswer, Answer: answer, Confidence: q.Confidence}, nil
}

func (e *Engine) doGetSource(cmd Command) (Response, error) {
	s := e.getOrCreateSource(cmd.Source)
	return Response{Cmd: CmdGetSource, Quality: s.Quality}, nil
}

func (e *Engine) doBelieve(cmd Command) (Response, error) {
	s := e.getOrCreateSource(cmd.Source)
	s.Quality = e.cfg.QualityOfBelievedSources
	s.Strength = e.cfg.MaximumStrength
	return Response{Cmd: CmdBelieve}, nil
}

func (e *Engine) doTestEquality(cmd Command) (Response, error) {
	a := model.NewAnswer(cmd.Answer1, "None")
	b := model.NewAnswer(cmd.Answer2, "None")
	return Response{Cmd: CmdTestEquality, Distance: e.eq.Distance(a, b)}, nil
}

func (e *Engine) doGetAnswers(cmd Command) (Response, error) {
	q := e.getOrCreateQuestion(cmd.Question)
	analysis := e.analyze(q)

	seen := make(map[uint64]struct{})
	out := make([]AnswerConfidence, 0, len(q.Answers))
	for ci, members := range analysis.clusters {
		for _, idx := range members {
			a := q.Answers[idx]
			if _, dup := seen[a.Hash]; dup {
				continue
			}
			seen[a.Hash] = struct{}{}
			out = append(out, AnswerConfidence{Answer: a.Content, Confidence: analysis.confidences[ci]})
		}
	}
	return Response{Cmd: CmdGetAnswers, Answers: out}, nil
}

// parseParams splits a Configure value's trailing "key=val" tokens the way
// the command grammar documents them: whitespace-separated, each containing
// exactly one "=".
func parseParams(val string) map[string]string {
	out := make(map[string]string)
	for _, tok := range strings.Fields(val) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}

func (e *Engine) doConfigure(cmd Command) (Response, error) {
	switch cmd.ConfigKey {
	case "comparison_method":
		return e.configureComparisonMethod(cmd.ConfigVal)
	case "default_source_quality", "log_weight_factor", "initial_source_strength", "maximum_strength":
		v, err := strconv.ParseFloat(cmd.ConfigVal, 64)
		if err != nil {
			return Response{}, newError(ErrConfigMissingParameter, "%s requires a numeric value, got %q", cmd.ConfigKey, cmd.ConfigVal)
		}
		switch cmd.ConfigKey {
		case "default_source_quality":
			e.cfg.DefaultSourceQuality = v
		case "log_weight_factor":
			e.cfg.LogWeightFactor = v
		case "initial_source_strength":
			e.cfg.InitialSourceStrength = v
		case "maximum_strength":
			e.cfg.MaximumStrength = v
		}
	default:
		return Response{}, newError(ErrConfigUnknownKey, "unknown configuration key %q", cmd.ConfigKey)
	}
	return Response{Cmd: CmdConfigure}, nil
}

func (e *Engine) configureComparisonMethod(val string) (Response, error) {
	fields := strings.Fields(val)
	if len(fields) == 0 {
		return Response{}, newError(ErrConfigMissingParameter, "comparison_method requires a method name")
	}
	method := fields[0]
	params := parseParams(val)

	switch method {
	case "exact":
		e.eq = similarity.Exact{}
	case "numeric":
		maxDistance, ok := parseFloatParam(params, "max_distance")
		if !ok {
			return Response{}, newError(ErrConfigMissingParameter, "max_distance must be specified")
		}
		e.eq = similarity.NumericScalar{MaxDistance: maxDistance}
	case "numeric_vec":
		allowedDifference, ok := parseFloatParam(params, "allowed_difference")
		if !ok {
			return Response{}, newError(ErrConfigMissingParameter, "allowed_difference must be specified (try 1.0)")
		}
		vecLength, ok := parseIntParam(params, "vec_length")
		if !ok {
			return Response{}, newError(ErrConfigMissingParameter, "vec_length must be specified (vector lengths must be fixed)")
		}
		diffFn, ok := similarity.ParseVecDiffFn(params["diff_fn"])
		if !ok {
			return Response{}, newError(ErrConfigMissingParameter, "diff_fn must be specified (l1, l2, percent_not_equal, iou)")
		}
		e.eq = similarity.NumericVector{AllowedDifference: allowedDifference, VecLength: vecLength, DiffFn: diffFn}
	default:
		return Response{}, newError(ErrConfigUnknownMethod, "unknown comparison method %q, try exact, numeric, or numeric_vec", method)
	}
	return Response{Cmd: CmdConfigure}, nil
}

func parseFloatParam(params map[string]string, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	return f, err == nil
}

func parseIntParam(params map[string]string, key string) (int, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}
