package transport

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// NewMenuImageUploadHandler serves POST /api/menu/:itemId/image with a multipart "file" field.
// Progress goes to menuItem:<itemId> while the bytes are written.
func NewMenuImageUploadHandler(svc *Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		itemID := c.Param("itemId")
		header, err := c.FormFile("file")
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "file field is required").SetInternal(err)
		}
		file, err := header.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unreadable file").SetInternal(err)
		}
		defer file.Close()

		result, err := svc.Uploads.Save(c.Request().Context(), itemID, header.Filename, file, header.Size)
		if err != nil {
			slog.Warn("menu image upload failed", slog.String("itemId", itemID), slog.Any("error", err))
			return errorMapper.HTTPError(err)
		}
		return c.JSON(http.StatusCreated, result)
	}
}
