package confidis

import "time"

// Source is the public view of a source's reliability estimate.
type Source struct {
	Name     string
	Quality  float64
	Strength float64
}

// Question is the public view of one question's accumulated answers.
type Question struct {
	Name       string
	Confidence float64
	Weight     float64
	Answers    []AnswerConfidence
}

// AnswerConfidence pairs one distinct answer with the confidence of the
// cluster it belongs to.
type AnswerConfidence struct {
	Answer     string
	Confidence float64
}

// Attestation is a signed claim that a source's quality was pinned by an
// explicit Believe command at a point in time.
type Attestation struct {
	Token     string
	ExpiresAt time.Time
}
