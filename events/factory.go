package events

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ruteri/accesskeys-registry/interfaces"
)

// SinkFactory creates event sinks from URI strings.
type SinkFactory struct {
	log *slog.Logger
}

// NewSinkFactory creates a factory whose sinks log through logger.
func NewSinkFactory(logger *slog.Logger) *SinkFactory {
	return &SinkFactory{log: logger}
}

// SinkFor creates a sink from a location URI.
//
// Supported schemes:
//   - log:// - structured logging
//   - file:// - JSON lines file, e.g. file:///var/lib/registry/events.jsonl
//   - s3:// - S3 or compatible object storage
//   - ipfs:// - IPFS node API
func (sf *SinkFactory) SinkFor(locationURI string) (interfaces.EventSink, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("invalid event sink URI %q: %w", locationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "log":
		return NewLogSink(sf.log), nil
	case "file":
		return sf.createFileSink(u)
	case "s3":
		return sf.createS3Sink(u)
	case "ipfs":
		return sf.createIPFSSink(u)
	default:
		return nil, fmt.Errorf("unsupported event sink scheme: %q", u.Scheme)
	}
}

// CreateMultiSink creates one sink per URI and combines them.
// Unlike storage redundancy, a misconfigured sink is a startup error.
func (sf *SinkFactory) CreateMultiSink(locationURIs []string) (interfaces.EventSink, error) {
	if len(locationURIs) == 0 {
		return nil, fmt.Errorf("no event sinks configured")
	}

	sinks := make([]interfaces.EventSink, 0, len(locationURIs))
	for _, uri := range locationURIs {
		sink, err := sf.SinkFor(uri)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}

	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return NewMultiSink(sinks, sf.log), nil
}

// createFileSink handles file:///absolute/path and file://./relative/path.
func (sf *SinkFactory) createFileSink(u *url.URL) (interfaces.EventSink, error) {
	sf.log.Debug("Creating file event sink", slog.String("uri", u.String()))

	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" || strings.HasSuffix(path, "/") {
		return nil, fmt.Errorf("file event sink needs a file path: %s", u.String())
	}

	return NewFileSink(path, sf.log)
}

// createS3Sink handles s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=us-west-2&endpoint=custom.s3.com
func (sf *SinkFactory) createS3Sink(u *url.URL) (interfaces.EventSink, error) {
	sf.log.Debug("Creating S3 event sink", slog.String("bucket", u.Host))

	query := u.Query()
	region := query.Get("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
	}

	return NewS3Sink(u.Host, strings.TrimPrefix(u.Path, "/"), region, query.Get("endpoint"), accessKey, secretKey, sf.log)
}

// createIPFSSink handles ipfs://host:port, defaulting to the API port 5001.
func (sf *SinkFactory) createIPFSSink(u *url.URL) (interfaces.EventSink, error) {
	sf.log.Debug("Creating IPFS event sink", slog.String("uri", u.String()))

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("IPFS event sink needs a host: %s", u.String())
	}
	port := u.Port()
	if port == "" {
		port = "5001"
	}
	return NewIPFSSink(host, port, sf.log), nil
}
