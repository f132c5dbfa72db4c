/*
Package transport maintains the realtime websocket channels to the
platform and turns their frames into domain updates.

# Overview

Each configured channel ("events", "system") gets one Stream: a client
websocket with keepalive, a subscribe handshake, and a read loop that
decodes envelope frames. Connection policy lives in the channel
machine; routing lives in the Router, which feeds worker lifecycle
messages to the worker registry and service health to the degradation
aggregator.

# Fault handling

Malformed frames and payloads are dropped with a debug log. A broken
socket is reported to the machine, which schedules reconnection with
backoff; the stream never retries on its own.
*/
package transport
