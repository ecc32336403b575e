package domain

import (
	"encoding/json"
	"time"
)

// Inbound payloads. Validation tags are checked by the socket and REST handlers.

type JoinOrderRoomPayload struct {
	OrderID    ID `json:"orderId" validate:"required"`
	CustomerID ID `json:"customerId"`
}

type JoinRestaurantRoomPayload struct {
	RestaurantID ID `json:"restaurantId" validate:"required"`
	StaffID      ID `json:"staffId"`
}

type JoinCustomerRoomPayload struct {
	CustomerID ID `json:"customerId" validate:"required"`
}

type JoinRoleRoomPayload struct {
	UserID ID     `json:"userId"`
	Role   string `json:"role" validate:"required,oneof=customer driver staff agent admin"`
}

type JoinChatPayload struct {
	UserID   ID     `json:"userId" validate:"required"`
	UserType string `json:"userType" validate:"required,oneof=customer staff agent"`
}

type JoinMenuItemRoomPayload struct {
	ItemID ID `json:"itemId" validate:"required"`
}

type LeaveRoomPayload struct {
	Room string `json:"room" validate:"required"`
}

type DriverLocationPayload struct {
	DriverID ID       `json:"driverId" validate:"required"`
	OrderID  ID       `json:"orderId" validate:"required"`
	Lat      *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng      *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
}

type AckOrderPayload struct {
	NotificationID int64 `json:"notificationId" validate:"required,gt=0"`
}

type SendMessagePayload struct {
	SenderID     ID     `json:"senderId" validate:"required"`
	SenderType   string `json:"senderType" validate:"required,oneof=customer staff agent"`
	ReceiverID   ID     `json:"receiverId" validate:"required"`
	ReceiverType string `json:"receiverType" validate:"required,oneof=customer staff agent"`
	Message      string `json:"message" validate:"required,max=4000"`
}

type TypingPayload struct {
	SenderID     ID     `json:"senderId" validate:"required"`
	SenderType   string `json:"senderType" validate:"required,oneof=customer staff agent"`
	ReceiverID   ID     `json:"receiverId" validate:"required"`
	ReceiverType string `json:"receiverType" validate:"required,oneof=customer staff agent"`
	IsTyping     bool   `json:"isTyping"`
}

type ReceiptPayload struct {
	MessageID uint64 `json:"messageId" validate:"required"`
}

type FetchChatHistoryPayload struct {
	OtherID   ID     `json:"otherId" validate:"required"`
	OtherType string `json:"otherType" validate:"required,oneof=customer staff agent"`
	Limit     int    `json:"limit" validate:"omitempty,gte=1,lte=500"`
}

type FetchAnnouncementsPayload struct {
	Role string `json:"role" validate:"required,oneof=all customer driver staff agent admin"`
}

// Outbound payloads.

type ConnectedData struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
	Role         string `json:"role,omitempty"`
}

type RoomData struct {
	Room string `json:"room"`
}

type NewOrderData struct {
	NotificationID int64           `json:"notificationId"`
	OrderID        string          `json:"orderId"`
	Room           string          `json:"room"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"createdAt"`
	Replayed       bool            `json:"replayed"`
}

type AckConfirmedData struct {
	NotificationID      int64      `json:"notificationId"`
	OrderID             string     `json:"orderId,omitempty"`
	AlreadyAcknowledged bool       `json:"alreadyAcknowledged"`
	AcknowledgedAt      *time.Time `json:"acknowledgedAt,omitempty"`
}

type ReplayIncompleteData struct {
	Room   string `json:"room"`
	Reason string `json:"reason"`
}

type LocationUpdateData struct {
	DriverID  string    `json:"driverId"`
	OrderID   string    `json:"orderId"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}

type TypingData struct {
	SenderID     string `json:"senderId"`
	SenderType   string `json:"senderType"`
	ReceiverID   string `json:"receiverId"`
	ReceiverType string `json:"receiverType"`
	IsTyping     bool   `json:"isTyping"`
}

type ReceiptData struct {
	MessageID uint64    `json:"messageId"`
	At        time.Time `json:"at"`
}

type PaymentUpdateData struct {
	OrderID    string          `json:"orderId"`
	CustomerID string          `json:"customerId"`
	Status     string          `json:"status"`
	Amount     float64         `json:"amount,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
}

type OrderStatusData struct {
	OrderID string          `json:"orderId"`
	Status  string          `json:"status"`
	Details json.RawMessage `json:"details,omitempty"`
}

type UploadProgressData struct {
	ItemID  string `json:"itemId"`
	Percent int    `json:"percent"`
	Bytes   int64  `json:"bytes"`
	Total   int64  `json:"total"`
}

type UploadCompleteData struct {
	ItemID string `json:"itemId"`
	URL    string `json:"url"`
	Bytes  int64  `json:"bytes"`
}
