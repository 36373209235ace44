package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/pdf-genie/internal/apperr"
)

// ContextUserKey は、ハンドラー間でログイン済みユーザーを共有するためのキーです。
const ContextUserKey = "auth.user"

// ErrUnauthenticated は認証情報が無い・無効な場合のエラーです。
var ErrUnauthenticated = apperr.New(apperr.KindUnauthorized, "UNAUTHORIZED", "認証情報を確認できませんでした", nil)

// RequireAuth は Authorization: Bearer トークンを検証するミドルウェアを返します。
func (m *Manager) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			m.abort(c)
			return
		}

		claims, err := m.tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			m.logger.WithError(err).Debug("rejected access token")
			m.abort(c)
			return
		}

		user, err := m.users.FindByID(c.Request.Context(), claims.UserID)
		if err != nil {
			apperr.Respond(c, err)
			c.Abort()
			return
		}
		if user == nil {
			m.abort(c)
			return
		}

		SetUser(c, user)
		c.Next()
	}
}

func (m *Manager) abort(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	apperr.Respond(c, ErrUnauthenticated)
	c.Abort()
}

// SetUser はコンテキストにユーザーを設定します。
func SetUser(c *gin.Context, user *User) {
	c.Set(ContextUserKey, user)
}

// CurrentUser はミドルウェアが設定したユーザーを返します。未認証の場合は nil です。
func CurrentUser(c *gin.Context) *User {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*User)
	return user
}
