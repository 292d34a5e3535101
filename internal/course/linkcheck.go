// Package course はコース管理のドメインロジックを提供する。
package course

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hitoshi/coursehub/internal/model"
)

const linkCheckTimeout = 10 * time.Second

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// VideoLinkChecker はレッスン動画URLの到達性チェックを提供する。
// 講師の入力値をサーバーからフェッチするため、SSRF防止付きの
// HTTPクライアントを使用する。
type VideoLinkChecker struct {
	ssrfGuard SSRFValidator
	client    *http.Client
}

// NewVideoLinkChecker はVideoLinkCheckerの新しいインスタンスを生成する。
func NewVideoLinkChecker(ssrfGuard SSRFValidator) *VideoLinkChecker {
	return &VideoLinkChecker{
		ssrfGuard: ssrfGuard,
		client:    ssrfGuard.NewSafeClient(linkCheckTimeout),
	}
}

// Check は動画URLの形式と到達性を検証する。
// スキーム・ホストの静的検証の後、HEADリクエストで到達性を確認する。
// HEADを受け付けないサーバー（405）にはGETでリトライする。
// 検証失敗はINVALID_VIDEO_URLとして呼び出し側に返る。
func (c *VideoLinkChecker) Check(ctx context.Context, rawURL string) error {
	if err := c.ssrfGuard.ValidateURL(rawURL); err != nil {
		return model.NewInvalidVideoURLError(fmt.Sprintf("URLが不正です: %s", rawURL))
	}

	status, err := c.probe(ctx, http.MethodHead, rawURL)
	if err == nil && status == http.StatusMethodNotAllowed {
		status, err = c.probe(ctx, http.MethodGet, rawURL)
	}
	if err != nil {
		return model.NewInvalidVideoURLError(fmt.Sprintf("動画URLに到達できません: %s", rawURL))
	}
	if status >= http.StatusBadRequest {
		return model.NewInvalidVideoURLError(fmt.Sprintf("動画URLがエラーを返しました (HTTP %d): %s", status, rawURL))
	}

	return nil
}

func (c *VideoLinkChecker) probe(ctx context.Context, method, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}
