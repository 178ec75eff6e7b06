// Package connect provides the Connect RPC timer service and its client.
package connect

import (
	"context"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/osa030/meditimer/internal/app/asset"
	"github.com/osa030/meditimer/internal/app/display"
	"github.com/osa030/meditimer/internal/app/notification"
	"github.com/osa030/meditimer/internal/app/player"
	"github.com/osa030/meditimer/internal/app/progress"
	"github.com/osa030/meditimer/internal/app/sequencer"
	"github.com/osa030/meditimer/internal/app/session"
	"github.com/osa030/meditimer/internal/domain/timer"
	"github.com/osa030/meditimer/internal/infra/prefs"
)

// TimerServiceName is the fully-qualified name of the timer service.
const TimerServiceName = "meditimer.v1.TimerService"

// Procedure paths of the timer service.
const (
	StartProcedure    = "/" + TimerServiceName + "/Start"
	PauseProcedure    = "/" + TimerServiceName + "/Pause"
	ResumeProcedure   = "/" + TimerServiceName + "/Resume"
	StopProcedure     = "/" + TimerServiceName + "/Stop"
	ChimeProcedure    = "/" + TimerServiceName + "/Chime"
	SnapshotProcedure = "/" + TimerServiceName + "/Snapshot"
	WatchProcedure    = "/" + TimerServiceName + "/Watch"
)

// Controller is the session surface the timer service drives.
type Controller interface {
	LoadConfig(ctx context.Context) (timer.Config, error)
	StartWith(cfg timer.Config) error
	Pause() error
	Resume() error
	Stop() error
	Chime(ctx context.Context, sound timer.BellSound) error
	Snapshot() progress.Snapshot
	Watch(stream notification.Stream) (func(), error)
	Notifications() *notification.Manager
	Done() <-chan struct{}
}

// TimerService implements the TimerService RPC.
type TimerService struct {
	session Controller
	refresh time.Duration
}

// NewTimerService creates a new TimerService. Watch streams send a snapshot
// every refresh interval in addition to session events.
func NewTimerService(session Controller, refresh time.Duration) *TimerService {
	if refresh <= 0 {
		refresh = display.DefaultRefresh
	}
	return &TimerService{
		session: session,
		refresh: refresh,
	}
}

// NewTimerServiceHandler builds an HTTP handler serving every timer service
// procedure. It returns the path prefix to mount the handler on.
func NewTimerServiceHandler(svc *TimerService, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(StartProcedure, connect.NewUnaryHandler(StartProcedure, svc.Start, opts...))
	mux.Handle(PauseProcedure, connect.NewUnaryHandler(PauseProcedure, svc.Pause, opts...))
	mux.Handle(ResumeProcedure, connect.NewUnaryHandler(ResumeProcedure, svc.Resume, opts...))
	mux.Handle(StopProcedure, connect.NewUnaryHandler(StopProcedure, svc.Stop, opts...))
	mux.Handle(ChimeProcedure, connect.NewUnaryHandler(ChimeProcedure, svc.Chime, opts...))
	mux.Handle(SnapshotProcedure, connect.NewUnaryHandler(SnapshotProcedure, svc.Snapshot, opts...))
	mux.Handle(WatchProcedure, connect.NewServerStreamHandler(WatchProcedure, svc.Watch, opts...))
	return "/" + TimerServiceName + "/", mux
}

// Start starts a session. Fields in the request override stored preferences.
func (s *TimerService) Start(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	base, err := s.session.LoadConfig(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	cfg, err := applyOverrides(base, req.Msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if err := s.session.StartWith(cfg); err != nil {
		return nil, toConnectError(err)
	}
	return s.snapshotResponse()
}

// Pause pauses the session.
func (s *TimerService) Pause(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	if err := s.session.Pause(); err != nil {
		return nil, toConnectError(err)
	}
	return s.snapshotResponse()
}

// Resume resumes the session.
func (s *TimerService) Resume(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	if err := s.session.Resume(); err != nil {
		return nil, toConnectError(err)
	}
	return s.snapshotResponse()
}

// Stop stops the session.
func (s *TimerService) Stop(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	if err := s.session.Stop(); err != nil {
		return nil, toConnectError(err)
	}
	return s.snapshotResponse()
}

// Chime plays a single bell while no session is running.
func (s *TimerService) Chime(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[emptypb.Empty], error) {
	sound := timer.BellSound(req.Msg.GetValue())
	if sound == "" {
		sound = timer.BellSmall
	}
	if err := s.session.Chime(ctx, sound); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// Snapshot returns the current progress.
func (s *TimerService) Snapshot(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.snapshotResponse()
}

// Watch streams session notifications. The first message is the current
// snapshot; later messages are session events and periodic snapshots.
func (s *TimerService) Watch(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
	stream *connect.ServerStream[structpb.Struct],
) error {
	adapter := &notificationStreamAdapter{stream: stream}
	unsubscribe, err := s.session.Watch(adapter)
	if err != nil {
		return connect.NewError(connect.CodeUnavailable, err)
	}
	defer unsubscribe()

	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()

	notifications := s.session.Notifications()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.session.Done():
			return nil
		case <-ticker.C:
			err := adapter.Send(&notification.Notification{
				SequenceNo: notifications.NextSequenceNo(),
				Type:       notification.TypeSnapshot,
				Snapshot:   s.session.Snapshot(),
				At:         time.Now(),
			})
			if err != nil {
				zlog.Debug().Err(err).Msg("watch stream closed")
				return nil
			}
		}
	}
}

func (s *TimerService) snapshotResponse() (*connect.Response[structpb.Struct], error) {
	msg, err := SnapshotToStruct(s.session.Snapshot())
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// notificationStreamAdapter adapts connect.ServerStream to notification.Stream.
// Sends are serialized because broadcasts and refresh ticks share the stream.
type notificationStreamAdapter struct {
	mu     sync.Mutex
	stream *connect.ServerStream[structpb.Struct]
}

func (a *notificationStreamAdapter) Send(n *notification.Notification) error {
	msg, err := NotificationToStruct(n)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream.Send(msg)
}

// toConnectError maps session errors to Connect codes.
func toConnectError(err error) error {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.Is(err, sequencer.ErrInvalidTransition),
		errors.Is(err, session.ErrSessionNotRunning),
		errors.Is(err, session.ErrSessionNotPaused):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.As(err, &validationErrs):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, asset.ErrUnknownAssetKind):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, prefs.ErrPreferencesUnavailable),
		errors.Is(err, player.ErrPlaybackUnavailable):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
