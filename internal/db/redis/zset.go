package redis

import (
	"context"

	"github.com/rosevoul/recserve/internal/db"
)

// TopN returns the n highest-scored members of a sorted set, best first.
func (s *Store) TopN(ctx context.Context, key string, n int) ([]db.ScoredMember, error) {
	if n == 0 {
		return nil, nil
	}
	stop := int64(n - 1)
	if n < 0 {
		stop = -1 // full set
	}

	cmd := s.b().Zrevrange().Key(key).Start(0).Stop(stop).Withscores().Build()
	scores, err := s.do(ctx, cmd).AsZScores()
	if err != nil {
		return nil, &db.Error{Op: db.OpZRevRange, Err: err}
	}

	members := make([]db.ScoredMember, len(scores))
	for i, z := range scores {
		members[i] = db.ScoredMember{Member: z.Member, Score: z.Score}
	}
	return members, nil
}
