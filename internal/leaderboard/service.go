package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/classquiz/internal/domain"
	"github.com/victornm/classquiz/internal/errors"
	"github.com/victornm/classquiz/internal/event"
)

const (
	defaultPublishInterval = 200 * time.Millisecond
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
	// PublishInterval is the minimum gap between two leaderboard.updated events of a quiz.
	PublishInterval time.Duration
}

type Service struct {
	eb       *event.Bus
	redis    redis.UniversalClient
	prefix   string
	interval time.Duration
}

func NewService(c Config) *Service {
	s := &Service{
		eb:       c.EventBus,
		redis:    c.Redis,
		prefix:   c.Prefix,
		interval: c.PublishInterval,
	}

	if s.interval <= 0 {
		s.interval = defaultPublishInterval
	}

	s.eb.Subscribe(domain.EventNameGradeUpdated, func(ctx context.Context, e event.Event) error {
		return s.UpdateLeaderboard(ctx, e.(domain.EventGradeUpdated))
	})

	return s
}

type GetLeaderboardRequest struct {
	QuizID int64
}

// GetLeaderboard returns the leaderboard for a quiz, including all graded students and their latest scores.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.getLeaderboardKey(req.QuizID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("leaderboard not found: quiz=%d", req.QuizID))
	}

	scores := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		scores = append(scores, domain.LeaderboardEntry{
			Username: z.Member.(string),
			Score:    z.Score,
		})
	}

	return &domain.Leaderboard{
		QuizID:  req.QuizID,
		Entries: scores,
	}, nil
}

// updateScore writes a student's score only if its grade time is not older than the one
// already recorded, so out-of-order events cannot roll the leaderboard back.
//
// KEYS[1] leaderboard zset, KEYS[2] grade time hash. ARGV: score, member, grade time (unix micros).
var updateScore = redis.NewScript(`
local cur = redis.call('HGET', KEYS[2], ARGV[2])
if cur and tonumber(cur) > tonumber(ARGV[3]) then
	return 0
end
redis.call('HSET', KEYS[2], ARGV[2], ARGV[3])
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// UpdateLeaderboard overwrites the student's score in the leaderboard, mirroring the grade upsert.
// An event carrying an older grade than the recorded one is ignored.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventGradeUpdated) error {
	g := e.Grade

	applied, err := updateScore.Run(ctx, s.redis,
		[]string{s.getLeaderboardKey(g.QuizID), s.getGradeTimeKey(g.QuizID)},
		g.Score.String(), member(e.Student), g.UpdateTime.UnixMicro(),
	).Int()
	if err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	if applied == 0 {
		slog.DebugContext(ctx, "leaderboard: stale grade ignored",
			"quiz_id", g.QuizID,
			"member", member(e.Student),
		)
		return nil
	}

	return s.schedulePublishLeaderboard(ctx, g)
}

// schedulePublishLeaderboard publishes the leaderboard at most once per interval per quiz.
// A burst of submissions at the end of a quiz would otherwise flood subscribers. Updates landing
// inside a window are announced by one trailing publish at the end of it.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, g domain.Grade) error {
	// SETNX keeps multiple instances from publishing the same window twice.
	ok, err := s.redis.SetNX(ctx, s.getLeaderboardTimeKey(g.QuizID), g.UpdateTime.UnixMilli(), s.interval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if ok {
		return s.publishLeaderboard(ctx, g.QuizID)
	}

	return s.trailingPublishLeaderboard(ctx, g.QuizID)
}

// trailingPublishLeaderboard waits out the window and publishes once for every update that lost
// the SETNX race meanwhile. Only the handler holding the pending key does the work.
func (s *Service) trailingPublishLeaderboard(ctx context.Context, quizID int64) error {
	pendingKey := s.getLeaderboardPendingKey(quizID)

	ok, err := s.redis.SetNX(ctx, pendingKey, 1, 2*s.interval).Result()
	if err != nil {
		return fmt.Errorf("setnx pending: %w", err)
	}
	if !ok {
		return nil
	}

	select {
	case <-time.After(s.interval):
	case <-ctx.Done():
		return ctx.Err()
	}

	// Release before reading, so an update landing after the read schedules its own publish.
	if err := s.redis.Del(ctx, pendingKey).Err(); err != nil {
		return fmt.Errorf("del pending: %w", err)
	}

	if err := s.publishLeaderboard(ctx, quizID); err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.getLeaderboardTimeKey(quizID), time.Now().UnixMilli(), s.interval).Err(); err != nil {
		return fmt.Errorf("refresh publish time: %w", err)
	}

	return nil
}

func (s *Service) publishLeaderboard(ctx context.Context, quizID int64) error {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{
		QuizID: quizID,
	})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: quiz=%d: %w", quizID, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

func member(id domain.Identity) string {
	if id.Username != "" {
		return id.Username
	}
	return strconv.FormatInt(id.UserID, 10)
}

func (s *Service) getLeaderboardKey(quizID int64) string {
	return fmt.Sprintf("%s:%d:leaderboard", s.prefix, quizID)
}

func (s *Service) getLeaderboardTimeKey(quizID int64) string {
	return fmt.Sprintf("%s:%d:time", s.prefix, quizID)
}

func (s *Service) getLeaderboardPendingKey(quizID int64) string {
	return fmt.Sprintf("%s:%d:pending", s.prefix, quizID)
}

func (s *Service) getGradeTimeKey(quizID int64) string {
	return fmt.Sprintf("%s:%d:grade_time", s.prefix, quizID)
}
