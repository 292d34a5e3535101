package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/coursehub/internal/model"
)

// ErrInvalidToken はトークン検証失敗を表す。
// 期限切れ・署名不正・形式不正のいずれもこのエラーに集約され、
// 呼び出し側はクライアント応答のために原因を区別しない。
var ErrInvalidToken = errors.New("invalid token")

// Claims はアクセス/リフレッシュトークンに埋め込むクレーム。
// ユーザーIDはRegisteredClaimsのSubjectに格納する。
// Roleは役割未選択のユーザーでは空になる。
// Nameはアクセストークンのみに含まれる。
type Claims struct {
	Role model.Role `json:"role,omitempty"`
	Name string     `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuerConfig はトークン発行の設定。
// アクセストークンとリフレッシュトークンは独立した秘密鍵で署名する。
type TokenIssuerConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration // アクセストークンの有効期間（デフォルト60秒）
	RefreshTTL    time.Duration // リフレッシュトークンの有効期間（デフォルト7日）
}

// TokenIssuer はJWTの発行と検証を行う。
// トークンはサーバー側に保存されず、有効性は署名と有効期限のみで判定する。
type TokenIssuer struct {
	config TokenIssuerConfig
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(config TokenIssuerConfig) *TokenIssuer {
	return &TokenIssuer{config: config}
}

// IssueAccess はアクセストークンを発行する。
// クレームにはユーザーID・役割・表示名を含む。
func (t *TokenIssuer) IssueAccess(userID string, role model.Role, name string) (string, error) {
	return t.sign(Claims{
		Role: role,
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(t.config.AccessTTL)),
		},
	}, t.config.AccessSecret)
}

// IssueRefresh はリフレッシュトークンを発行する。
// クレームにはユーザーIDと役割のみを含む。
func (t *TokenIssuer) IssueRefresh(userID string, role model.Role) (string, error) {
	return t.sign(Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(t.config.RefreshTTL)),
		},
	}, t.config.RefreshSecret)
}

// VerifyAccess はアクセストークンの署名と有効期限を検証する。
// 失敗理由にかかわらずErrInvalidTokenを返す。
func (t *TokenIssuer) VerifyAccess(token string) (*Claims, error) {
	return verify(token, t.config.AccessSecret)
}

// VerifyRefresh はリフレッシュトークンの署名と有効期限を検証する。
// 失敗理由にかかわらずErrInvalidTokenを返す。
func (t *TokenIssuer) VerifyRefresh(token string) (*Claims, error) {
	return verify(token, t.config.RefreshSecret)
}

func (t *TokenIssuer) sign(claims Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func verify(token string, secret []byte) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tk *jwt.Token) (any, error) {
		// 署名方式はHS256に固定する
		if tk.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
