package models

import "github.com/dmitrijs2005/htgen/internal/common"

// OfflineState is the payload of the connectivity notification.
type OfflineState struct {
	IsOffline bool   `json:"isOffline"`
	Message   string `json:"message"`
}

// Notification is the message broadcast from the worker side to UI surfaces.
type Notification struct {
	Type    string       `json:"type"`
	Payload OfflineState `json:"payload"`
}

func NewOfflineStateNotification(offline bool, message string) Notification {
	return Notification{
		Type:    common.OfflineStateMessageType,
		Payload: OfflineState{IsOffline: offline, Message: message},
	}
}
