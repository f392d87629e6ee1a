// Package mqtt forwards hook events from the event bus to an MQTT
// broker so other systems can watch stop decisions, checkpoints and
// keyword activations as they happen.
//
// Each event is published as JSON to
//
//	<topic_prefix>/<instance_id>/<source>/<kind>
//
// at QoS 0. The forwarder uses Eclipse Paho v2's [autopaho] package for
// connection management with automatic reconnection. On every
// (re-)connect it publishes a retained "online" birth message to the
// availability topic; a will message moves that topic to "offline" on
// unexpected disconnects.
package mqtt
