package models

import "time"

// MessageChannel is the delivery channel of an outbound message
type MessageChannel string

const (
	ChannelEmail MessageChannel = "email"
	ChannelSMS   MessageChannel = "sms"
)

// MessageStatus represents the delivery status of an outbound message
type MessageStatus string

const (
	MessagePending MessageStatus = "pending"
	MessageSent    MessageStatus = "sent"
	MessageFailed  MessageStatus = "failed"
)

// OutboundMessage is a durable queue entry for passenger notifications.
// Created by whoever needs to notify; mutated only by the queue
// processor; deleted by the cleanup sweep once terminal and past the
// retention window.
type OutboundMessage struct {
	ID        string         `json:"id" db:"id"`
	Channel   MessageChannel `json:"channel" db:"channel"`
	Recipient string         `json:"recipient" db:"recipient"`
	Payload   string         `json:"payload" db:"payload"`
	Status    MessageStatus  `json:"status" db:"status"`
	Attempts  int            `json:"attempts" db:"attempts"`
	Error     *string        `json:"error,omitempty" db:"error"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	SentAt    *time.Time     `json:"sent_at,omitempty" db:"sent_at"`
}

// IsTerminal reports whether the message will never be attempted again
func (m *OutboundMessage) IsTerminal() bool {
	return m.Status == MessageSent || m.Status == MessageFailed
}
