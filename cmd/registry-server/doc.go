// Package main (cmd/registry-server) runs the access-key registry HTTP API.
//
// The server keeps the credential ledger in SQLite (or in memory for development),
// verifies secp256k1 request signatures, and publishes committed ledger events to
// one or more sinks. Prometheus metrics are served on a separate listener.
//
// The server implements graceful shutdown on SIGINT/SIGTERM and exposes
// /livez, /readyz, /drain and /undrain for load balancers.
//
// Example usage:
//
//	registry-server --listen-addr=0.0.0.0:8080 \
//	    --db-path=/var/lib/accesskeys/ledger.db \
//	    --admin=0x8ba1f109551bD432803012645Ac136ddd64DBA72 \
//	    --event-sink=log:// \
//	    --event-sink=s3://registry-events/ledger?region=eu-west-1
package main
