// Package model holds the belief graph's data records: answers, sources,
// and questions. Types here carry no behavior beyond small accessors — the
// update protocol and clustering logic live in internal/graph and
// internal/cluster.
package model

import "github.com/cespare/xxhash/v2"

// Answer is one source's contribution to one question. It is immutable
// after construction: content, once hashed, never changes underneath a
// cluster index that references it.
type Answer struct {
	Content string
	Source  string
	Hash    uint64
}

// NewAnswer builds an Answer, computing its content fingerprint.
// Equal content always yields equal hashes; a collision between unequal
// content is tolerated (spec.md §3) and only risks merging two
// visibly-different answers into one de-duplication bucket.
func NewAnswer(content, source string) Answer {
	return Answer{
		Content: content,
		Source:  source,
		Hash:    xxhash.Sum64String(content),
	}
}
