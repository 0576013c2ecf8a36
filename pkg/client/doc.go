// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package client provides a reconnecting MQTT client built on the
// protocol connection core.
//
// A Client dials the broker named by Config.URL, sends CONNECT and waits for
// CONNACK. Run then drains the inbound queue into a handler.Handler in wire
// order, answers QoS 1 and QoS 2 flows, sends PINGREQ every KeepAlive and,
// with AutoReconnect, dials again with exponential backoff after the
// connection is lost. Dial attempts go through a circuit breaker so an
// unreachable broker is retried at the breaker's pace.
//
// Example:
//
//	c := client.New(client.Config{
//		URL:           "mqtt://localhost:1883",
//		ClientID:      "sensor-1",
//		KeepAlive:     30 * time.Second,
//		AutoReconnect: true,
//		Subscriptions: []packet.Subscription{{Topic: "cmd/sensor-1/#", QoS: 1}},
//	}, h)
//
//	go c.Run(ctx)
//
//	if _, err := c.Publish(packet.Message{Topic: "telemetry", Payload: data}); err != nil {
//		return err
//	}
package client
