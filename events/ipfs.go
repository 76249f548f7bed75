package events

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/accesskeys-registry/interfaces"
)

// IPFSSink adds each published batch to an IPFS node as a JSON lines document.
type IPFSSink struct {
	shell *shell.Shell
	host  string
	port  string
	log   *slog.Logger
}

var _ interfaces.EventSink = (*IPFSSink)(nil)

// NewIPFSSink creates a sink talking to the IPFS API at host:port.
func NewIPFSSink(host, port string, log *slog.Logger) *IPFSSink {
	return &IPFSSink{
		shell: shell.NewShell(fmt.Sprintf("%s:%s", host, port)),
		host:  host,
		port:  port,
		log:   log,
	}
}

// Publish adds the batch to IPFS and logs the resulting CID.
func (s *IPFSSink) Publish(ctx context.Context, events ...interfaces.Event) error {
	if len(events) == 0 {
		return nil
	}
	if !s.shell.IsUp() {
		return fmt.Errorf("IPFS node %s:%s unavailable", s.host, s.port)
	}

	data, err := EncodeBatch(events)
	if err != nil {
		return err
	}

	cid, err := s.shell.Add(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to add events to IPFS: %w", err)
	}

	s.log.Info("Published events to IPFS",
		slog.String("ipfsCID", cid),
		slog.String("first_event", events[0].ID),
		slog.Int("count", len(events)))
	return nil
}

// Name returns identifier for logging.
func (s *IPFSSink) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", s.host, s.port)
}
