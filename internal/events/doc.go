// Package events publishes session activity to NATS.
//
// Events are published to subjects:
//   - {prefix}.{session_id}.transition
//   - {prefix}.{session_id}.progress
//   - {prefix}.{session_id}.completed
//   - {prefix}.{session_id}.failed
//
// Every message body is a JSON Event envelope. Subscribers use
// "{prefix}.{session_id}.>" to follow one session or "{prefix}.>" for all.
package events
