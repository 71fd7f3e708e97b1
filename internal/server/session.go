package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"k8s.io/klog/v2"

	"github.com/treasuryhq/treasury/internal/treasury"
	"github.com/treasuryhq/treasury/internal/wireproto"
	"github.com/treasuryhq/treasury/telemetry"
	"github.com/treasuryhq/treasury/uri"
)

// session holds the per-connection state: the treasury a client has
// opened, and the socket it's talking over. A connection is only
// useful after a successful Open exchange.
type session struct {
	conn     net.Conn
	registry *treasury.Registry
	tr       *treasury.Treasury
	fr       *wireproto.FrameReader
	fw       *wireproto.FrameWriter
}

// openPhase reads the mandatory first message (Open) and responds with
// OpenSuccess or OpenFailure. A non-nil error means the connection
// should be torn down without serving further requests.
func (sess *session) openPhase() error {
	frame, err := sess.fr.ReadFrame()
	if err != nil {
		return fmt.Errorf("server: reading open frame: %w", err)
	}
	tag, body, err := wireproto.PeekTag(frame)
	if err != nil {
		return err
	}
	if tag != wireproto.TagOpen {
		return sess.fw.WriteFrame(wireproto.EncodeOpenFailure(
			fmt.Sprintf("expected Open, got message tag %d", tag)))
	}
	req, err := wireproto.DecodeOpenRequest(body)
	if err != nil {
		return sess.fw.WriteFrame(wireproto.EncodeOpenFailure(err.Error()))
	}

	tr, err := sess.registry.OpenWithInit(req.Path, req.Init)
	if err != nil {
		return sess.fw.WriteFrame(wireproto.EncodeOpenFailure(err.Error()))
	}
	sess.tr = tr
	return sess.fw.WriteFrame(wireproto.EncodeOpenSuccess())
}

// serve runs the request/response loop until the client disconnects, a
// response write fails, or the client sends an empty frame. A message
// with an unknown tag gets a Failure response and the loop goes on.
func (sess *session) serve() {
	for {
		frame, err := sess.fr.ReadFrame()
		if err != nil {
			return
		}
		resp, fatal := sess.dispatch(frame)
		if err := sess.fw.WriteFrame(resp); err != nil {
			klog.V(2).Infof("server: write to %s failed: %v", sess.conn.RemoteAddr(), err)
			return
		}
		if fatal {
			return
		}
	}
}

func (sess *session) dispatch(frame []byte) (resp []byte, fatal bool) {
	tag, body, err := wireproto.PeekTag(frame)
	if err != nil {
		return wireproto.EncodeFailure(err.Error()), true
	}

	method := methodName(tag)
	metricsRequestsByMethod.WithLabelValues(method).Inc()
	start := time.Now()

	ctx, finishSpan := telemetry.TraceRequest(context.Background(), method)
	var handlerErr error
	defer func() {
		finishSpan(handlerErr)
		metricsRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		metricsMethodToStatus.WithLabelValues(method, responseStatus(resp)).Inc()
	}()

	switch tag {
	case wireproto.TagStore:
		req, err := wireproto.DecodeStoreRequest(body)
		if err != nil {
			handlerErr = err
			return wireproto.EncodeFailure(err.Error()), false
		}
		resp, handlerErr = sess.handleStore(ctx, req)
		return resp, false

	case wireproto.TagFetchURL:
		req, err := wireproto.DecodeFetchURLRequest(body)
		if err != nil {
			handlerErr = err
			return wireproto.EncodeFailure(err.Error()), false
		}
		return sess.handleFetchURL(req), false

	case wireproto.TagFindAsset:
		req, err := wireproto.DecodeFindAssetRequest(body)
		if err != nil {
			handlerErr = err
			return wireproto.EncodeFailure(err.Error()), false
		}
		return sess.handleFindAsset(req), false

	default:
		return wireproto.EncodeFailure(fmt.Sprintf("unexpected message tag %d", tag)), false
	}
}

func methodName(tag wireproto.Tag) string {
	switch tag {
	case wireproto.TagStore:
		return "store"
	case wireproto.TagFetchURL:
		return "fetch_url"
	case wireproto.TagFindAsset:
		return "find_asset"
	default:
		return "unknown"
	}
}

func responseStatus(resp []byte) string {
	tag, _, err := wireproto.PeekTag(resp)
	if err != nil {
		return "unknown"
	}
	switch tag {
	case wireproto.TagSuccess:
		return "success"
	case wireproto.TagNotFound:
		return "not_found"
	case wireproto.TagFailure:
		return "failure"
	default:
		return "unknown"
	}
}

func (sess *session) handleStore(ctx context.Context, req wireproto.StoreRequest) ([]byte, error) {
	id, path, err := sess.tr.Store(ctx, uri.New(req.Source), req.Format, req.Target)
	if err != nil {
		metricsImportOutcome.WithLabelValues(req.Target, "failure").Inc()
		return wireproto.EncodeFailure(err.Error()), err
	}
	metricsImportOutcome.WithLabelValues(req.Target, "success").Inc()
	return wireproto.EncodeSuccess(id, path), nil
}

func (sess *session) handleFetchURL(req wireproto.FetchURLRequest) []byte {
	path, ok, err := sess.tr.FetchPath(req.ID)
	if err != nil {
		return wireproto.EncodeFailure(err.Error())
	}
	if !ok {
		return wireproto.EncodeNotFound()
	}
	return wireproto.EncodeSuccess(req.ID, path)
}

func (sess *session) handleFindAsset(req wireproto.FindAssetRequest) []byte {
	asset, ok, err := sess.tr.FindAsset(uri.New(req.Source), req.Target)
	if err != nil {
		return wireproto.EncodeFailure(err.Error())
	}
	if !ok {
		return wireproto.EncodeNotFound()
	}
	path, _, err := sess.tr.FetchPath(asset.ID)
	if err != nil {
		return wireproto.EncodeFailure(err.Error())
	}
	return wireproto.EncodeSuccess(asset.ID, path)
}
