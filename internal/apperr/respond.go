package apperr

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HTTPStatus は分類に対応するHTTPステータスを返します。
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// Respond はエラーを {"code","message"} 形式のJSONで返します。
func Respond(c *gin.Context, err error) {
	var appErr *Error
	switch {
	case errors.As(err, &appErr) && appErr.Kind != KindInternal:
		c.JSON(HTTPStatus(err), gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}
