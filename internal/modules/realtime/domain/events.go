package domain

// Inbound socket events.
const (
	EventJoinOrderRoom      = "joinOrderRoom"
	EventJoinRestaurantRoom = "joinRestaurantRoom"
	EventJoinCustomerRoom   = "joinCustomerRoom"
	EventJoinRoleRoom       = "joinRoleRoom"
	EventJoinChat           = "joinChat"
	EventJoinMenuItemRoom   = "joinMenuItemRoom"
	EventLeaveRoom          = "leaveRoom"
	EventDriverLocation     = "driverLocation"
	EventAckOrder           = "ackOrder"
	EventSendMessage        = "sendMessage"
	EventTyping             = "typing"
	EventDelivered          = "delivered"
	EventRead               = "read"
	EventFetchChatHistory   = "fetchChatHistory"
	EventFetchAnnouncements = "fetchAnnouncements"
	EventPing               = "ping"
)

// Outbound socket events.
const (
	EventConnected         = "connected"
	EventJoined            = "joined"
	EventLeft              = "left"
	EventNewOrder          = "newOrder"
	EventAckConfirmed      = "ackConfirmed"
	EventReplayIncomplete  = "replayIncomplete"
	EventLocationUpdate    = "locationUpdate"
	EventNewMessage        = "newMessage"
	EventMessageSent       = "messageSent"
	EventMessageDelivered  = "messageDelivered"
	EventMessageRead       = "messageRead"
	EventChatHistory       = "chatHistory"
	EventChatError         = "chatError"
	EventAnnouncement      = "announcement"
	EventAnnouncementBatch = "announcementBatch"
	EventPaymentUpdate     = "paymentUpdate"
	EventOrderStatus       = "orderStatus"
	EventUploadProgress    = "uploadProgress"
	EventUploadComplete    = "uploadComplete"
	EventError             = "error"
	EventPong              = "pong"
)
