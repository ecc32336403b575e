package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidRoomKey = errors.New("invalid room key")

// RoomKind namespaces room ids.
type RoomKind string

const (
	RoomOrder      RoomKind = "order"
	RoomRestaurant RoomKind = "restaurant"
	RoomRole       RoomKind = "role"
	RoomCustomer   RoomKind = "customer"
	RoomStaff      RoomKind = "staff"
	RoomAgent      RoomKind = "agent"
	RoomMenuItem   RoomKind = "menuItem"
)

var knownKinds = map[RoomKind]struct{}{
	RoomOrder:      {},
	RoomRestaurant: {},
	RoomRole:       {},
	RoomCustomer:   {},
	RoomStaff:      {},
	RoomAgent:      {},
	RoomMenuItem:   {},
}

// Backlogged reports whether notifications addressed to rooms of this kind are persisted
// and replayed to members that join later.
func (k RoomKind) Backlogged() bool {
	return k == RoomRestaurant
}

// RoomKey identifies a room as kind:id.
type RoomKey struct {
	Kind RoomKind
	ID   string
}

func NewRoomKey(kind RoomKind, id string) (RoomKey, error) {
	id = strings.TrimSpace(id)
	if _, ok := knownKinds[kind]; !ok {
		return RoomKey{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidRoomKey, kind)
	}
	if id == "" || strings.Contains(id, ":") {
		return RoomKey{}, fmt.Errorf("%w: bad id %q for kind %s", ErrInvalidRoomKey, id, kind)
	}
	return RoomKey{Kind: kind, ID: id}, nil
}

// ParseRoomKey parses the canonical kind:id form.
func ParseRoomKey(raw string) (RoomKey, error) {
	kind, id, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return RoomKey{}, fmt.Errorf("%w: %q", ErrInvalidRoomKey, raw)
	}
	return NewRoomKey(RoomKind(kind), id)
}

func (k RoomKey) String() string {
	return string(k.Kind) + ":" + k.ID
}

func (k RoomKey) IsZero() bool {
	return k.Kind == "" && k.ID == ""
}

func OrderRoom(orderID string) (RoomKey, error) { return NewRoomKey(RoomOrder, orderID) }

func RestaurantRoom(restaurantID string) (RoomKey, error) {
	return NewRoomKey(RoomRestaurant, restaurantID)
}

func CustomerRoom(customerID string) (RoomKey, error) { return NewRoomKey(RoomCustomer, customerID) }

func MenuItemRoom(itemID string) (RoomKey, error) { return NewRoomKey(RoomMenuItem, itemID) }

func RoleRoom(role string) (RoomKey, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if !IsRole(role) {
		return RoomKey{}, fmt.Errorf("%w: unknown role %q", ErrInvalidRoomKey, role)
	}
	return NewRoomKey(RoomRole, role)
}

// PartyRoom is the personal room of a chat participant: customer:13, staff:4, agent:16.
func PartyRoom(partyType, id string) (RoomKey, error) {
	switch RoomKind(strings.ToLower(strings.TrimSpace(partyType))) {
	case RoomCustomer:
		return NewRoomKey(RoomCustomer, id)
	case RoomStaff:
		return NewRoomKey(RoomStaff, id)
	case RoomAgent:
		return NewRoomKey(RoomAgent, id)
	default:
		return RoomKey{}, fmt.Errorf("%w: unknown party type %q", ErrInvalidRoomKey, partyType)
	}
}

var roles = []string{"customer", "driver", "staff", "agent", "admin"}

// IsRole reports whether role is one of the platform roles.
func IsRole(role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
