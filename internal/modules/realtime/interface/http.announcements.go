package transport

import (
	"net/http"

	"github.com/labstack/echo/v4"

	announcements "foodDeliveryWs/internal/modules/announcements/domain"
	"foodDeliveryWs/internal/shared/auth"
)

type CreateAnnouncementRequest struct {
	Title    string   `json:"title" validate:"required,max=200"`
	Message  string   `json:"message" validate:"required"`
	Audience []string `json:"audience" validate:"required,min=1,dive,oneof=all customer driver staff agent"`
}

type CreateAnnouncementResponse struct {
	Announcement *announcements.Announcement `json:"announcement"`
	Recipients   int                         `json:"recipients"`
}

type AnnouncementsResponse struct {
	Announcements []announcements.Announcement `json:"announcements"`
}

// NewCreateAnnouncementHandler serves POST /api/announcements (admin only).
func NewCreateAnnouncementHandler(svc *Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req CreateAnnouncementRequest
		if err := bindAndValidate(c, svc.Validator, &req); err != nil {
			return err
		}
		a, n, err := svc.Announcements.Publish(c.Request().Context(), req.Title, req.Message, req.Audience)
		if err != nil {
			return errorMapper.HTTPError(err)
		}
		return c.JSON(http.StatusCreated, CreateAnnouncementResponse{Announcement: a, Recipients: n})
	}
}

// NewListAnnouncementsHandler serves GET /api/announcements?role=. Without a role the caller's
// own role is used.
func NewListAnnouncementsHandler(svc *Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := auth.ClaimsFrom(c)
		role := c.QueryParam("role")
		if role == "" {
			role = claims.PrimaryRole()
		}
		if role != announcements.AudienceAll && !claims.HasRole(role) {
			return echo.NewHTTPError(http.StatusForbidden, auth.ErrForbidden.Error())
		}
		list, err := svc.Announcements.ForRole(c.Request().Context(), role)
		if err != nil {
			return errorMapper.HTTPError(err)
		}
		if list == nil {
			list = []announcements.Announcement{}
		}
		return c.JSON(http.StatusOK, AnnouncementsResponse{Announcements: list})
	}
}
