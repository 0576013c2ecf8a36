// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

// Packet types as they appear in the high nibble of the command byte.
const (
	Connect     byte = 0x10
	Connack     byte = 0x20
	Publish     byte = 0x30
	Puback      byte = 0x40
	Pubrec      byte = 0x50
	Pubrel      byte = 0x60
	Pubcomp     byte = 0x70
	Subscribe   byte = 0x80
	Suback      byte = 0x90
	Unsubscribe byte = 0xA0
	Unsuback    byte = 0xB0
	Pingreq     byte = 0xC0
	Pingresp    byte = 0xD0
	Disconnect  byte = 0xE0
	Auth        byte = 0xF0
)

var typeNames = map[byte]string{
	Connect:     "CONNECT",
	Connack:     "CONNACK",
	Publish:     "PUBLISH",
	Puback:      "PUBACK",
	Pubrec:      "PUBREC",
	Pubrel:      "PUBREL",
	Pubcomp:     "PUBCOMP",
	Subscribe:   "SUBSCRIBE",
	Suback:      "SUBACK",
	Unsubscribe: "UNSUBSCRIBE",
	Unsuback:    "UNSUBACK",
	Pingreq:     "PINGREQ",
	Pingresp:    "PINGRESP",
	Disconnect:  "DISCONNECT",
	Auth:        "AUTH",
}

// Type masks the flags out of a command byte.
func Type(command byte) byte {
	return command & 0xF0
}

// TypeName returns the packet type name of a command byte.
func TypeName(command byte) string {
	if name, ok := typeNames[Type(command)]; ok {
		return name
	}
	return "RESERVED"
}
