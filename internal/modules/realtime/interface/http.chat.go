package transport

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	chat "foodDeliveryWs/internal/modules/chat/domain"
	"foodDeliveryWs/internal/shared/auth"
)

type ChatHistoryResponse struct {
	Messages []chat.Message `json:"messages"`
}

// NewChatHistoryHandler serves GET /api/chat/history?userId=&userType=&otherId=&otherType=&limit=.
// Callers only read conversations they take part in.
func NewChatHistoryHandler(svc *Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		userType, okUser := chat.ParsePartyType(c.QueryParam("userType"))
		otherType, okOther := chat.ParsePartyType(c.QueryParam("otherType"))
		if !okUser || !okOther {
			return echo.NewHTTPError(http.StatusBadRequest, "userType and otherType must be customer, staff or agent")
		}
		self := chat.Party{ID: c.QueryParam("userId"), Type: userType}
		other := chat.Party{ID: c.QueryParam("otherId"), Type: otherType}

		claims := auth.ClaimsFrom(c)
		if !claims.HasRole(auth.RoleAdmin) && !(claims.Owns(self.ID) && claims.HasRole(string(self.Type))) {
			return echo.NewHTTPError(http.StatusForbidden, auth.ErrForbidden.Error())
		}

		limit := 0
		if raw := c.QueryParam("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 500 {
				return echo.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 500")
			}
			limit = n
		}

		messages, err := svc.Chat.History(c.Request().Context(), self, other, limit)
		if err != nil {
			return errorMapper.HTTPError(err)
		}
		if messages == nil {
			messages = []chat.Message{}
		}
		return c.JSON(http.StatusOK, ChatHistoryResponse{Messages: messages})
	}
}
