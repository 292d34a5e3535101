// Package ratings はコース平均評価のバックグラウンド再集計ジョブを提供する。
// レビューの書き込みのたびに集計する代わりに、一定間隔でまとめて
// courses.average_ratingを再計算する。
package ratings

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RatingRefresher は平均評価の再集計インターフェース。
type RatingRefresher interface {
	// RefreshAverageRatings は全コースの平均評価をレビューから再集計する。
	RefreshAverageRatings(ctx context.Context) (int64, error)
}

// MetricsRecorder は再集計件数のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordRatingsRefreshed(count int64)
}

// Refresher はコース平均評価の定期再集計ジョブ。
// 冪等: レビューが変化していない場合も同じ値をUPDATEするだけで害はない。
type Refresher struct {
	courseRepo RatingRefresher
	logger     *slog.Logger
	metrics    MetricsRecorder
}

// NewRefresher はRefresherの新しいインスタンスを生成する。
// metricsはnilでもよい。
func NewRefresher(courseRepo RatingRefresher, logger *slog.Logger, metrics MetricsRecorder) *Refresher {
	return &Refresher{
		courseRepo: courseRepo,
		logger:     logger,
		metrics:    metrics,
	}
}

// Start は指定間隔のティッカーで再集計ジョブを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Refresher) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("評価再集計ジョブを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	if err := r.RunOnce(ctx); err != nil {
		r.logger.Error("評価再集計の実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("評価再集計ジョブを停止しました")
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error("評価再集計の実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は全コースの平均評価を1回再集計する。
func (r *Refresher) RunOnce(ctx context.Context) error {
	start := time.Now()

	updated, err := r.courseRepo.RefreshAverageRatings(ctx)
	if err != nil {
		return fmt.Errorf("平均評価の再集計に失敗: %w", err)
	}

	if r.metrics != nil {
		r.metrics.RecordRatingsRefreshed(updated)
	}

	r.logger.Info("評価再集計ジョブが完了しました",
		slog.Int64("updated_count", updated),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}
