package utils

import (
	"context"
	"time"

	"pictionary/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SessionReaper は放置されたセッションを削除します。
type SessionReaper interface {
	ReapSessions(ctx context.Context) (int, error)
}

// ResultPruner は古い対戦結果を削除します。
type ResultPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CronCleaner schedules the cleanup jobs and starts the scheduler. A nil pruner
// (no PostgreSQL) skips the result job. The caller stops the returned scheduler.
func CronCleaner(reaper SessionReaper, pruner ResultPruner, cfg models.CronConfig, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New()

	// 全員が切断したまま残ったセッションを削除するジョブ
	if _, err := c.AddFunc(cfg.ReapSpec, func() { reapJob(reaper, logger) }); err != nil {
		return nil, err
	}

	// 保存期間を過ぎた対戦結果を削除するジョブ
	if pruner != nil {
		retention := cfg.ResultRetention.Std()
		if _, err := c.AddFunc(cfg.PruneResultsSpec, func() { pruneJob(pruner, retention, logger) }); err != nil {
			return nil, err
		}
	}

	c.Start()
	return c, nil
}

func reapJob(reaper SessionReaper, logger *zap.Logger) {
	n, err := reaper.ReapSessions(context.Background())
	if err != nil {
		logger.Error("放置セッションの削除に失敗しました", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Info("放置セッション削除完了", zap.Int("sessions_deleted", n))
	}
}

func pruneJob(pruner ResultPruner, retention time.Duration, logger *zap.Logger) {
	logger.Info("古い対戦結果を削除する処理を開始")
	n, err := pruner.DeleteOlderThan(context.Background(), time.Now().Add(-retention))
	if err != nil {
		logger.Error("対戦結果の削除に失敗しました", zap.Error(err))
		return
	}
	logger.Info("対戦結果の削除完了", zap.Int64("results_deleted", n))
}
