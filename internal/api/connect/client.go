package connect

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"connectrpc.com/connect"
	"golang.org/x/oauth2"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/osa030/meditimer/internal/app/notification"
	"github.com/osa030/meditimer/internal/app/progress"
	"github.com/osa030/meditimer/internal/domain/timer"
)

// Client is a timer service client.
type Client struct {
	start    *connect.Client[structpb.Struct, structpb.Struct]
	pause    *connect.Client[emptypb.Empty, structpb.Struct]
	resume   *connect.Client[emptypb.Empty, structpb.Struct]
	stop     *connect.Client[emptypb.Empty, structpb.Struct]
	chime    *connect.Client[wrapperspb.StringValue, emptypb.Empty]
	snapshot *connect.Client[emptypb.Empty, structpb.Struct]
	watch    *connect.Client[emptypb.Empty, structpb.Struct]
}

// NewHTTPClient returns an HTTP client that sends token as a bearer credential.
func NewHTTPClient(ctx context.Context, token string) *http.Client {
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
}

// NewClient creates a timer service client for the server at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		start:    connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+StartProcedure, opts...),
		pause:    connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+PauseProcedure, opts...),
		resume:   connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+ResumeProcedure, opts...),
		stop:     connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+StopProcedure, opts...),
		chime:    connect.NewClient[wrapperspb.StringValue, emptypb.Empty](httpClient, baseURL+ChimeProcedure, opts...),
		snapshot: connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+SnapshotProcedure, opts...),
		watch:    connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+WatchProcedure, opts...),
	}
}

// Start starts a session. overrides may be nil to use stored preferences.
func (c *Client) Start(ctx context.Context, overrides map[string]any) (progress.Snapshot, error) {
	body, err := ConfigOverrides(overrides)
	if err != nil {
		return progress.Snapshot{}, err
	}
	return snapshotOf(c.start.CallUnary(ctx, connect.NewRequest(body)))
}

// Pause pauses the session.
func (c *Client) Pause(ctx context.Context) (progress.Snapshot, error) {
	return snapshotOf(c.pause.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{})))
}

// Resume resumes the session.
func (c *Client) Resume(ctx context.Context) (progress.Snapshot, error) {
	return snapshotOf(c.resume.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{})))
}

// Stop stops the session.
func (c *Client) Stop(ctx context.Context) (progress.Snapshot, error) {
	return snapshotOf(c.stop.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{})))
}

// Chime plays a single bell on the server.
func (c *Client) Chime(ctx context.Context, sound timer.BellSound) error {
	_, err := c.chime.CallUnary(ctx, connect.NewRequest(wrapperspb.String(string(sound))))
	return err
}

// Snapshot returns the current progress.
func (c *Client) Snapshot(ctx context.Context) (progress.Snapshot, error) {
	return snapshotOf(c.snapshot.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{})))
}

// Watch calls fn for every notification until ctx is done, the server ends
// the stream, or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(*notification.Notification) error) error {
	stream, err := c.watch.CallServerStream(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		n, err := NotificationFromStruct(stream.Msg())
		if err != nil {
			return err
		}
		if err := fn(n); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func snapshotOf(resp *connect.Response[structpb.Struct], err error) (progress.Snapshot, error) {
	if err != nil {
		return progress.Snapshot{}, err
	}
	return SnapshotFromStruct(resp.Msg)
}

// RemoteSource is a display source fed by a Watch stream.
type RemoteSource struct {
	client *Client

	mu   sync.RWMutex
	last progress.Snapshot
}

// NewRemoteSource creates a display source for the server behind client.
func NewRemoteSource(client *Client) *RemoteSource {
	return &RemoteSource{client: client}
}

// Run watches the server until ctx is done and keeps the latest snapshot.
func (r *RemoteSource) Run(ctx context.Context) error {
	return r.client.Watch(ctx, func(n *notification.Notification) error {
		r.mu.Lock()
		r.last = n.Snapshot
		r.mu.Unlock()
		return nil
	})
}

// Snapshot returns the latest snapshot received.
func (r *RemoteSource) Snapshot() progress.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}
