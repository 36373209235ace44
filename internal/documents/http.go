package documents

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/pdf-genie/internal/apperr"
	"github.com/yourusername/pdf-genie/internal/auth"
)

// UploadHandler は POST /api/pdf/upload のハンドラーを返します。
func UploadHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.CurrentUser(c)
		if user == nil {
			apperr.Respond(c, auth.ErrUnauthenticated)
			return
		}

		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "multipart/form-data の file フィールドでPDFファイルを送信してください。",
			})
			return
		}

		doc, err := svc.Upload(c.Request.Context(), user.ID, file)
		if err != nil {
			apperr.Respond(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":          doc.ID,
			"filename":    doc.Filename,
			"file_size":   doc.SizeBytes,
			"pages_count": doc.PagesCount,
			"upload_time": doc.CreatedAt,
		})
	}
}

// ListHandler は GET /api/user/documents のハンドラーを返します。
func ListHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.CurrentUser(c)
		if user == nil {
			apperr.Respond(c, auth.ErrUnauthenticated)
			return
		}

		docs, err := svc.List(c.Request.Context(), user.ID)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, docs)
	}
}
