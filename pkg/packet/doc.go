// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package packet builds outbound MQTT control packets.
//
// A Builder turns semantic parameters (topic, QoS, retain flag, properties,
// reason code, duplicate flag) into framed bytes ready for the wire and
// allocates message identifiers for packets that are acknowledged later:
// SUBSCRIBE, UNSUBSCRIBE and PUBLISH with QoS above 0.
//
// Protocol levels 3 (MQTT 3.1) and 4 (MQTT 3.1.1) are encoded with the
// eclipse/paho.mqtt.golang packets library. Level 5 adds properties,
// subscription options and reason codes and is encoded by this package.
package packet
