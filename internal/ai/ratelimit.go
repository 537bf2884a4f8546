package ai

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"
)

// newLimiter 按每分钟请求数匀速放行，突发上限为 rpm。rpm <= 0 返回 nil，不限速。
func newLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60), rpm)
}

func wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	if l.Tokens() < 1 {
		slog.Info("rate limit reached, waiting")
	}
	return l.Wait(ctx)
}
