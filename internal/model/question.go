package model

// Question accumulates answers from sources and resolves to a
// believed-correct cluster. CorrectAnswers is always a subset of Answers
// (by content hash); Weight is the feedback this question currently exerts
// on the sources that contributed to it.
type Question struct {
	Name           string
	Answers        []Answer
	CorrectAnswers []Answer
	Confidence     float64
	Weight         float64
}

// CorrectHashes returns the set of content hashes currently believed
// correct, for O(1) membership tests during the update protocol.
func (q *Question) CorrectHashes() map[uint64]struct{} {
	set := make(map[uint64]struct{}, len(q.CorrectAnswers))
	for _, a := range q.CorrectAnswers {
		set[a.Hash] = struct{}{}
	}
	return set
}
