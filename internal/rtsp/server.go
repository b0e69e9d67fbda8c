// Package rtsp is the RTSP relay that runs on the device.  It reads the
// capture's raw H.264 stream, and serves it to players over RTSP with
// RTP/UDP unicast delivery.
//
// Only what a player needs to pull one live track is implemented:
// OPTIONS, DESCRIBE, SETUP, PLAY and TEARDOWN.
package rtsp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bluenviron/gortsplib/v5/pkg/base"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"

	"mimic/util"
)

const (
	// DefaultPort is where players connect.
	DefaultPort = 5554

	// mtu bounds the RTP payload; larger NAL units are fragmented.
	mtu = 1200

	sessionTimeout = 60
	queueDepth     = 256
)

// Server serves the live stream to any number of players.
type Server struct {
	Logger *util.Logger

	mu       sync.Mutex
	sps, pps []byte
	sessions map[string]*clientSession
	ln       net.Listener
	closed   bool
	id       uint64
}

// NewServer returns a server with no stream data yet.
func NewServer(logger *util.Logger) *Server {
	return &Server{
		Logger:   logger,
		sessions: make(map[string]*clientSession),
		id:       rand.Uint64() >> 1,
	}
}

// Serve accepts control connections on ln until ctx is cancelled or
// Close is called.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	s.logf("listening on %s", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || s.isClosed() || util.IsHarmless(err) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting players and ends every session.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	ln := s.ln
	sessions := s.sessions
	s.sessions = make(map[string]*clientSession)
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, cs := range sessions {
		cs.close()
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// WriteNALU feeds one NAL unit (without start code) of the live
// stream.  Parameter sets are cached for DESCRIBE and for players that
// join later; everything is forwarded to playing sessions.  Slow
// players lose units rather than stall the stream.
func (s *Server) WriteNALU(nalu []byte) {
	if len(nalu) == 0 {
		return
	}
	nalu = append([]byte(nil), nalu...)

	s.mu.Lock()
	switch NALUType(nalu) {
	case h264.NALUTypeSPS:
		s.sps = nalu
	case h264.NALUTypePPS:
		s.pps = nalu
	}
	var playing []*clientSession
	for _, cs := range s.sessions {
		if cs.isPlaying() {
			playing = append(playing, cs)
		}
	}
	s.mu.Unlock()

	for _, cs := range playing {
		cs.enqueue(nalu)
	}
}

// ParameterSets returns the cached SPS and PPS.
func (s *Server) ParameterSets() (sps, pps []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sps, s.pps
}

// ── control connection ───────────────────────────────────────────────

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	s.logf("player connected from %s", conn.RemoteAddr())

	owned := make(map[string]struct{})
	defer func() {
		for id := range owned {
			s.removeSession(id)
		}
	}()

	br := bufio.NewReader(conn)
	for {
		var req base.Request
		if err := req.Unmarshal(br); err != nil {
			if !util.IsHarmless(err) {
				s.debugf("read request: %v", err)
			}
			return
		}
		s.debugf("%s %s", req.Method, urlString(req.URL))

		res := s.handle(&req, conn, owned)
		res.Header["CSeq"] = req.Header["CSeq"]
		byts, err := res.Marshal()
		if err != nil {
			s.debugf("marshal response: %v", err)
			return
		}
		if _, err := conn.Write(byts); err != nil {
			return
		}
	}
}

func (s *Server) handle(req *base.Request, conn net.Conn, owned map[string]struct{}) *base.Response {
	switch req.Method {
	case base.Options:
		return reply(base.StatusOK, base.Header{
			"Public": base.HeaderValue{"OPTIONS, DESCRIBE, SETUP, PLAY, TEARDOWN"},
		})

	case base.Describe:
		sps, pps := s.ParameterSets()
		host := util.HostOf(conn.LocalAddr())
		res := reply(base.StatusOK, base.Header{
			"Content-Type": base.HeaderValue{"application/sdp"},
			"Content-Base": base.HeaderValue{strings.TrimSuffix(urlString(req.URL), "/") + "/"},
		})
		res.Body = describeSDP(s.id, host, sps, pps)
		return res

	case base.Setup:
		return s.setup(req, conn, owned)

	case base.Play:
		cs, res := s.lookup(req)
		if cs == nil {
			return res
		}
		sps, pps := s.ParameterSets()
		cs.play(sps, pps)
		s.logf("session %s playing to %s", cs.id, cs.conn.RemoteAddr())
		return reply(base.StatusOK, base.Header{"Session": base.HeaderValue{cs.id}})

	case base.Teardown:
		cs, res := s.lookup(req)
		if cs == nil {
			return res
		}
		s.removeSession(cs.id)
		delete(owned, cs.id)
		return reply(base.StatusOK, nil)

	default:
		return reply(base.StatusNotImplemented, nil)
	}
}

func (s *Server) setup(req *base.Request, conn net.Conn, owned map[string]struct{}) *base.Response {
	th, ok := req.Header["Transport"]
	if !ok || len(th) == 0 {
		return reply(base.StatusBadRequest, nil)
	}
	rtpPort, rtcpPort, err := clientPorts(th[0])
	if err != nil {
		s.debugf("setup: %v", err)
		return reply(base.StatusUnsupportedTransport, nil)
	}

	peer := util.FormatAddr(util.HostOf(conn.RemoteAddr()), rtpPort)
	udp, err := net.Dial("udp", peer)
	if err != nil {
		s.debugf("setup: dial %s: %v", peer, err)
		return reply(base.StatusInternalServerError, nil)
	}

	cs := newClientSession(strings.ReplaceAll(uuid.NewString(), "-", "")[:16], udp.(*net.UDPConn), s.Logger)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cs.close()
		return reply(base.StatusServiceUnavailable, nil)
	}
	s.sessions[cs.id] = cs
	s.mu.Unlock()
	owned[cs.id] = struct{}{}

	serverPort := udp.LocalAddr().(*net.UDPAddr).Port
	return reply(base.StatusOK, base.Header{
		"Transport": base.HeaderValue{fmt.Sprintf("RTP/AVP;unicast;client_port=%d-%d;server_port=%d-%d",
			rtpPort, rtcpPort, serverPort, serverPort+1)},
		"Session": base.HeaderValue{cs.id + ";timeout=" + strconv.Itoa(sessionTimeout)},
	})
}

// lookup finds the session named by the request, or returns the 454
// response to send.
func (s *Server) lookup(req *base.Request) (*clientSession, *base.Response) {
	var id string
	if v, ok := req.Header["Session"]; ok && len(v) > 0 {
		id, _, _ = strings.Cut(v[0], ";")
		id = strings.TrimSpace(id)
	}
	s.mu.Lock()
	cs := s.sessions[id]
	s.mu.Unlock()
	if cs == nil {
		return nil, reply(base.StatusSessionNotFound, nil)
	}
	return cs, nil
}

func (s *Server) removeSession(id string) {
	s.mu.Lock()
	cs := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if cs != nil {
		cs.close()
		s.logf("session %s closed", id)
	}
}

func reply(code base.StatusCode, h base.Header) *base.Response {
	if h == nil {
		h = base.Header{}
	}
	return &base.Response{StatusCode: code, Header: h}
}

func urlString(u *base.URL) string {
	if u == nil {
		return "*"
	}
	return u.String()
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.Logger != nil {
		s.Logger.Verbose(format, args...)
	}
}

func (s *Server) debugf(format string, args ...interface{}) {
	if s.Logger != nil {
		s.Logger.Debug(format, args...)
	}
}

// ── RTP delivery ─────────────────────────────────────────────────────

type clientSession struct {
	id         string
	conn       *net.UDPConn
	packetizer rtp.Packetizer
	logger     *util.Logger

	mu      sync.Mutex
	playing bool
	start   time.Time
	lastTS  uint32

	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClientSession(id string, conn *net.UDPConn, logger *util.Logger) *clientSession {
	return &clientSession{
		id:   id,
		conn: conn,
		packetizer: rtp.NewPacketizer(mtu, PayloadType, rand.Uint32(),
			&codecs.H264Payloader{}, rtp.NewRandomSequencer(), ClockRate),
		logger: logger,
		queue:  make(chan []byte, queueDepth),
		done:   make(chan struct{}),
	}
}

func (cs *clientSession) isPlaying() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.playing
}

// play starts delivery, leading with the parameter sets so the player
// can decode from the next IDR picture.
func (cs *clientSession) play(sps, pps []byte) {
	cs.mu.Lock()
	if cs.playing {
		cs.mu.Unlock()
		return
	}
	cs.playing = true
	cs.start = time.Now()
	cs.mu.Unlock()

	if sps != nil {
		cs.enqueue(sps)
	}
	if pps != nil {
		cs.enqueue(pps)
	}
	go cs.run()
}

func (cs *clientSession) enqueue(nalu []byte) {
	select {
	case cs.queue <- nalu:
	case <-cs.done:
	default:
		if cs.logger != nil {
			cs.logger.Debug("session %s: queue full, dropping NAL unit", cs.id)
		}
	}
}

func (cs *clientSession) run() {
	for {
		select {
		case <-cs.done:
			return
		case nalu := <-cs.queue:
			if err := cs.send(nalu); err != nil {
				if !errors.Is(err, net.ErrClosed) && cs.logger != nil {
					cs.logger.Debug("session %s: %v", cs.id, err)
				}
			}
		}
	}
}

// send packetizes one NAL unit stamped with the wall-clock time since
// PLAY on the 90 kHz clock.
func (cs *clientSession) send(nalu []byte) error {
	ts := uint32(time.Since(cs.start) * ClockRate / time.Second)
	samples := ts - cs.lastTS
	cs.lastTS = ts

	for _, pkt := range cs.packetizer.Packetize(nalu, samples) {
		byts, err := pkt.Marshal()
		if err != nil {
			return err
		}
		if _, err := cs.conn.Write(byts); err != nil {
			return err
		}
	}
	return nil
}

func (cs *clientSession) close() {
	cs.closeOnce.Do(func() {
		close(cs.done)
		cs.conn.Close()
	})
}
