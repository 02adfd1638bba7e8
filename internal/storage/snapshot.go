package storage

import (
	"context"
	"fmt"

	"github.com/waoai/confidis/internal/model"
)

// WriteSnapshot upserts the current state of every source and question.
// Each row is a point-in-time reading, not an append-only history — a
// source or question that was snapshotted before and has since changed
// simply gets its row overwritten.
func (db *DB) WriteSnapshot(ctx context.Context, sources []model.Source, questions []model.Question) error {
	for _, s := range sources {
		_, err := db.pool.Exec(ctx, `
			INSERT INTO confidis_sources (name, quality, strength, snapshotted_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (name) DO UPDATE SET
				quality = EXCLUDED.quality,
				strength = EXCLUDED.strength,
				snapshotted_at = EXCLUDED.snapshotted_at
		`, s.Name, s.Quality, s.Strength)
		if err != nil {
			return fmt.Errorf("storage: upsert source %q: %w", s.Name, err)
		}
	}

	for _, q := range questions {
		_, err := db.pool.Exec(ctx, `
			INSERT INTO confidis_questions (name, confidence, weight, answer_count, snapshotted_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (name) DO UPDATE SET
				confidence = EXCLUDED.confidence,
				weight = EXCLUDED.weight,
				answer_count = EXCLUDED.answer_count,
				snapshotted_at = EXCLUDED.snapshotted_at
		`, q.Name, q.Confidence, q.Weight, len(q.Answers))
		if err != nil {
			return fmt.Errorf("storage: upsert question %q: %w", q.Name, err)
		}
	}

	return nil
}
