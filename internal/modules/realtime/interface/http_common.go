package transport

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	announcements "foodDeliveryWs/internal/modules/announcements/domain"
	chat "foodDeliveryWs/internal/modules/chat/domain"
	notifications "foodDeliveryWs/internal/modules/notifications/domain"
	"foodDeliveryWs/internal/modules/realtime/application/port"
	"foodDeliveryWs/internal/modules/realtime/application/usecase"
	"foodDeliveryWs/internal/modules/realtime/domain"
	"foodDeliveryWs/internal/shared/httputil"
	"foodDeliveryWs/internal/shared/validation"
)

// Services bundles what the socket and REST surfaces call into.
type Services struct {
	Dispatcher    *usecase.NotificationDispatcher
	Broadcast     *usecase.BroadcastUseCase
	Chat          *usecase.ChatUseCase
	Announcements *usecase.AnnouncementUseCase
	Uploads       *usecase.UploadUseCase
	Validator     *validation.Validator
}

var errorMapper = httputil.NewErrorMapper().
	WithMapping(domain.ErrInvalidRoomKey, http.StatusBadRequest, "invalid room").
	WithMapping(notifications.ErrNotFound, http.StatusNotFound, "notification not found").
	WithMapping(notifications.ErrInvalidNotification, http.StatusBadRequest, "invalid notification").
	WithMapping(notifications.ErrTransitionConflict, http.StatusConflict, "notification state conflict").
	WithMapping(chat.ErrMessageNotFound, http.StatusNotFound, "message not found").
	WithMapping(chat.ErrInvalidMessage, http.StatusBadRequest, "invalid chat message").
	WithMapping(usecase.ErrChatUnavailable, http.StatusServiceUnavailable, "chat unavailable").
	WithMapping(announcements.ErrInvalidAnnouncement, http.StatusBadRequest, "invalid announcement").
	WithMapping(usecase.ErrInvalidLocation, http.StatusBadRequest, "invalid location").
	WithMapping(usecase.ErrUploadTooLarge, http.StatusRequestEntityTooLarge, "file too large").
	WithMapping(usecase.ErrUploadNotAllowed, http.StatusUnsupportedMediaType, "file type not allowed").
	WithMapping(port.ErrUnknownConnection, http.StatusGone, "connection gone")

// bindAndValidate decodes the request body into dst and runs the struct validation.
func bindAndValidate(c echo.Context, v *validation.Validator, dst any) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	if err := v.Validate(dst); err != nil {
		return validationHTTPError(err)
	}
	return nil
}

func validationHTTPError(err error) *echo.HTTPError {
	var ve *validation.ValidationError
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusBadRequest, map[string]any{"message": "validation failed", "errors": ve.Errors})
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}
