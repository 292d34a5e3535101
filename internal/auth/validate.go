package auth

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/hitoshi/coursehub/internal/model"
)

const (
	nameMinLen     = 2
	nameMaxLen     = 50
	passwordMinLen = 6
)

// emailPattern はメールアドレスの形式チェック用の正規表現。
// 厳密なRFC準拠ではなく、明らかな入力ミスを弾くことが目的。
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidateRegistration は登録リクエストの入力を検証する。
// すべての検証を通過した場合は正規化済みの役割を返し、
// 失敗した場合はVALIDATION_FAILEDのAPIErrorを返す。
func ValidateRegistration(name, email, password, role string) (model.Role, error) {
	if n := utf8.RuneCountInString(name); n < nameMinLen || n > nameMaxLen {
		return model.RoleUnset, model.NewValidationError(
			fmt.Sprintf("名前は%d〜%d文字で入力してください", nameMinLen, nameMaxLen))
	}
	if !emailPattern.MatchString(email) {
		return model.RoleUnset, model.NewValidationError("メールアドレスの形式が正しくありません")
	}
	if err := validatePassword(password); err != nil {
		return model.RoleUnset, err
	}
	parsed, ok := model.ParseRole(role)
	if !ok {
		return model.RoleUnset, model.NewValidationError("役割にはSTUDENTまたはINSTRUCTORを指定してください")
	}
	return parsed, nil
}

// ValidateLogin はログインリクエストの入力を検証する。
func ValidateLogin(email, password string) error {
	if !emailPattern.MatchString(email) {
		return model.NewValidationError("メールアドレスの形式が正しくありません")
	}
	if len(password) < passwordMinLen {
		return model.NewValidationError(
			fmt.Sprintf("パスワードは%d文字以上で入力してください", passwordMinLen))
	}
	return nil
}

// validatePassword はパスワードの複雑性要件を検証する。
// 6文字以上の英数字のみで構成され、大文字・小文字・数字を
// それぞれ1文字以上含む必要がある。
// Goの正規表現は先読みをサポートしないため文字走査で判定する。
func validatePassword(password string) error {
	if len(password) < passwordMinLen {
		return model.NewValidationError(
			fmt.Sprintf("パスワードは%d文字以上で入力してください", passwordMinLen))
	}

	var hasLower, hasUpper, hasDigit bool
	for _, c := range password {
		switch {
		case c >= 'a' && c <= 'z':
			hasLower = true
		case c >= 'A' && c <= 'Z':
			hasUpper = true
		case c >= '0' && c <= '9':
			hasDigit = true
		default:
			return model.NewValidationError("パスワードに使用できるのは英数字のみです")
		}
	}

	if !hasLower || !hasUpper || !hasDigit {
		return model.NewValidationError("パスワードには大文字・小文字・数字をそれぞれ1文字以上含めてください")
	}
	return nil
}
