// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package packet

import "errors"

// Protocol levels.
const (
	V31  byte = 3
	V311 byte = 4
	V5   byte = 5
)

var (
	// ErrUnsupportedVersion is returned for protocol levels other than 3, 4 and 5.
	ErrUnsupportedVersion = errors.New("unsupported protocol version")

	// ErrInvalidQoS is returned when a QoS is greater than 2.
	ErrInvalidQoS = errors.New("invalid qos")

	// ErrEmptyTopic is returned for a publish or will without a topic.
	ErrEmptyTopic = errors.New("empty topic")

	// ErrNoTopics is returned for subscribe or unsubscribe without topics.
	ErrNoTopics = errors.New("no topics")

	// ErrInvalidCommand is returned when a command cannot carry a message id.
	ErrInvalidCommand = errors.New("invalid command")
)

// Message is an application message carried by PUBLISH or used as a will.
type Message struct {
	Topic      string
	Payload    []byte
	QoS        byte
	Retain     bool
	Dup        bool
	Properties *Properties
}

// ConnectOptions holds CONNECT packet fields.
type ConnectOptions struct {
	ClientID   string
	Username   string
	Password   []byte
	CleanStart bool
	KeepAlive  uint16
	Will       *Message
	Properties *Properties
}

// Subscription is a topic filter with its MQTT 5 subscription options.
// Only Topic and QoS are used before MQTT 5.
type Subscription struct {
	Topic             string
	QoS               byte
	NoLocal           bool
	RetainAsPublished bool
	RetainHandling    byte
}

// UserProperty is a MQTT 5 user property pair.
type UserProperty struct {
	Key   string
	Value string
}

// Properties holds the MQTT 5 properties a client sends.
// Unset fields are not encoded.
type Properties struct {
	PayloadFormat          *byte
	MessageExpiryInterval  *uint32
	ContentType            string
	ResponseTopic          string
	CorrelationData        []byte
	SubscriptionIdentifier *uint32
	SessionExpiryInterval  *uint32
	RequestProblemInfo     *byte
	WillDelayInterval      *uint32
	RequestResponseInfo    *byte
	ReasonString           string
	ReceiveMaximum         *uint16
	TopicAliasMaximum      *uint16
	TopicAlias             *uint16
	MaximumPacketSize      *uint32
	UserProperties         []UserProperty
}

// Reason codes used on DISCONNECT.
const (
	ReasonNormalDisconnection     byte = 0x00
	ReasonDisconnectWithWill      byte = 0x04
	ReasonUnspecifiedError        byte = 0x80
	ReasonSessionExpiryNotDesired byte = 0x8E
)
