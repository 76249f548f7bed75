// Package events provides interfaces.EventSink implementations that publish
// committed registry operations to external indexers.
//
// Sinks are selected by URI:
//   - log:// - structured log lines through slog
//   - file:///path/events.jsonl - JSON lines appended to a local file
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=us-east-1&endpoint=... - one
//     JSON lines object per published batch
//   - ipfs://host:port - one JSON lines document per batch added to an IPFS node
//
// MultiSink fans a batch out to several sinks.
package events
