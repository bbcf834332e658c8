package protocol

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/synapsedb/synapse/pkg/engine"
	synerrors "github.com/synapsedb/synapse/pkg/errors"
	"github.com/synapsedb/synapse/pkg/pathfinder"
	"github.com/synapsedb/synapse/pkg/writeplane"
)

// Options configures the protocol server (§6.2 STORAGE_HOST, STORAGE_PORT,
// SECURE_MODE).
type Options struct {
	Addr      string
	TLSConfig *tls.Config // nil unless SECURE_MODE=true
	Secret    []byte      // HMAC shared secret, required when TLSConfig != nil
	RateLimit float64     // requests/second per connection identity
	RateBurst float64
	Deadline  time.Duration // per-request deadline; 0 disables

	// ExpensiveOpsPerSecond bounds the server-wide rate of SemanticSearch
	// and FindPaths calls, the two request kinds whose cost scales with
	// graph size rather than message size. This is a distinct concern
	// from RateLimit: RateLimit is per-client fairness, this protects
	// the process's CPU budget from any mix of well-behaved clients
	// issuing expensive queries concurrently.
	ExpensiveOpsPerSecond float64
	ExpensiveOpsBurst     int
}

// Server accepts connections and serves the wire protocol over one
// engine, spawning one goroutine per connection the way the teacher's
// ingress proxy spawns one handler per accepted socket.
type Server struct {
	opts        Options
	engine      engine.Engine
	auth        *Authenticator
	limiter     *RateLimiter
	expensiveRL *rate.Limiter
	log         zerolog.Logger
	started     time.Time

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// New builds a server over eng. If opts.TLSConfig is set, every
// connection must complete the HMAC handshake before any request is
// served (§6.2 SECURE_MODE=true).
func New(opts Options, eng engine.Engine, log zerolog.Logger) (*Server, error) {
	s := &Server{opts: opts, engine: eng, log: log.With().Str("component", "protocol").Logger()}
	if opts.TLSConfig != nil {
		a, err := NewAuthenticator(opts.Secret)
		if err != nil {
			return nil, err
		}
		s.auth = a
	}
	if opts.RateLimit > 0 {
		s.limiter = NewRateLimiter(opts.RateLimit, opts.RateBurst)
	}
	if opts.ExpensiveOpsPerSecond > 0 {
		burst := opts.ExpensiveOpsBurst
		if burst <= 0 {
			burst = 1
		}
		s.expensiveRL = rate.NewLimiter(rate.Limit(opts.ExpensiveOpsPerSecond), burst)
	}
	return s, nil
}

// Serve listens on opts.Addr and blocks, accepting connections until ctx
// is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return synerrors.Wrap(err, "listen")
	}
	if s.opts.TLSConfig != nil {
		ln = tls.NewListener(ln, s.opts.TLSConfig)
	}
	s.mu.Lock()
	s.listener = ln
	s.started = time.Now()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.log.Info().Str("addr", s.opts.Addr).Msg("protocol server listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
				s.log.Warn().Err(err).Msg("accept failed")
				continue
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	identity := conn.RemoteAddr().String()
	if s.limiter != nil {
		defer s.limiter.Forget(identity)
	}

	if s.auth != nil {
		if err := s.handshake(conn); err != nil {
			s.log.Warn().Err(err).Str("remote", identity).Msg("handshake failed")
			return
		}
	}

	for {
		payload, err := ReadFrame(conn)
		if err != nil {
			return
		}

		if s.limiter != nil && !s.limiter.Allow(identity) {
			writeErr := WriteFrame(conn, EncodeResponse(ErrorResponse(&synerrors.OverloadedError{Reason: "rate limit exceeded"})))
			if writeErr != nil {
				return
			}
			continue
		}

		req, err := DecodeRequest(payload)
		if err != nil {
			WriteFrame(conn, EncodeResponse(ErrorResponse(err)))
			return
		}

		reqCtx := ctx
		var cancel context.CancelFunc
		if s.opts.Deadline > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, s.opts.Deadline)
		}
		resp := s.dispatch(reqCtx, req)
		if cancel != nil {
			cancel()
		}

		if err := WriteFrame(conn, EncodeResponse(resp)); err != nil {
			return
		}
	}
}

func (s *Server) handshake(conn net.Conn) error {
	payload, err := ReadFrame(conn)
	if err != nil {
		return err
	}
	if len(payload) != 56 {
		return &synerrors.AuthError{Reason: "malformed handshake"}
	}
	var hs Handshake
	copy(hs.Nonce[:], payload[0:16])
	hs.TimestampMS = int64(beUint64(payload[16:24]))
	copy(hs.MAC[:], payload[24:56])

	if err := s.auth.Verify(hs, time.Now()); err != nil {
		WriteFrame(conn, EncodeResponse(ErrorResponse(err)))
		return err
	}
	return WriteFrame(conn, EncodeResponse(Response{Tag: RespOK, Status: "ready"}))
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// dispatch routes one decoded request to the engine and builds its
// response, translating engine errors into the shared error variant
// rather than letting any layer below here decide wire framing (§7
// "errors originate at the lowest layer... propagate unchanged to the
// protocol boundary").
func (s *Server) dispatch(ctx context.Context, req Request) Response {
	switch req.Tag {
	case TagHealthCheck:
		return Response{Tag: RespOK, Status: "ok", Uptime: int64(time.Since(s.started).Seconds()), Version: "1"}

	case TagLearnConcept:
		seq, err := s.engine.LearnConcept(req.Content, req.Vector, req.Strength, req.Confidence, req.Semantic)
		if err != nil {
			return ErrorResponse(err)
		}
		return Response{Tag: RespOK, Sequence: seq}

	case TagLearnAssociation:
		seq, err := s.engine.LearnAssociation(req.Source, req.Target, req.AssocType, req.Weight)
		if err != nil {
			return ErrorResponse(err)
		}
		return Response{Tag: RespOK, Sequence: seq}

	case TagLearnBatch:
		entries := make([]writeplane.BatchEntry, len(req.Batch))
		for i, item := range req.Batch {
			if item.IsConcept {
				entries[i] = writeplane.BatchEntry{Concept: &writeplane.ConceptInput{
					Content: item.Content, Vector: item.Vector,
					Strength: item.Strength, Confidence: item.Confidence, Semantic: item.Semantic,
				}}
			} else {
				entries[i] = writeplane.BatchEntry{Association: &writeplane.AssociationInput{
					Source: item.Source, Target: item.Target, Type: item.AssocType, Weight: item.Weight,
				}}
			}
		}
		seqs, err := s.engine.LearnBatch(entries)
		if err != nil {
			return ErrorResponse(err)
		}
		return Response{Tag: RespOK, Sequences: seqs}

	case TagGetConcept:
		if req.HasMinVisible {
			if err := s.engine.WaitForVersion(ctx, req.ConceptID, req.MinVisibleSequence); err != nil {
				return ErrorResponse(err)
			}
		}
		c, err := s.engine.GetConcept(req.ConceptID)
		if err != nil {
			return ErrorResponse(err)
		}
		return Response{Tag: RespOK, Concept: &ConceptWire{
			ID: c.ID, Content: c.Content, Vector: c.Vector,
			Strength: c.Strength, Confidence: c.Confidence, Semantic: c.Semantic,
		}}

	case TagGetNeighbors:
		edges := s.engine.GetNeighbors(req.ConceptID, req.AssocType, req.K)
		out := make([]NeighborWire, len(edges))
		for i, e := range edges {
			out[i] = NeighborWire{Target: e.Target, Type: e.Association.Type, Weight: e.Association.Weight}
		}
		return Response{Tag: RespOK, Neighbors: out}

	case TagTextSearch:
		hits := s.engine.TextSearch(req.Tokens, req.K)
		out := make([]ScoredHitWire, len(hits))
		for i, h := range hits {
			out[i] = ScoredHitWire{ID: h.Concept.ID, Score: -h.Distance}
		}
		return Response{Tag: RespOK, ScoredHits: out}

	case TagSemanticSearch:
		if s.expensiveRL != nil && !s.expensiveRL.Allow() {
			return ErrorResponse(&synerrors.OverloadedError{Reason: "expensive operation rate limit exceeded"})
		}
		hits, err := s.engine.SemanticSearch(ctx, req.Vector, req.K, req.EfSearch)
		if err != nil {
			return ErrorResponse(err)
		}
		out := make([]ScoredHitWire, len(hits))
		for i, h := range hits {
			out[i] = ScoredHitWire{ID: h.Concept.ID, Score: h.Distance}
		}
		return Response{Tag: RespOK, ScoredHits: out}

	case TagFindPaths:
		if s.expensiveRL != nil && !s.expensiveRL.Allow() {
			return ErrorResponse(&synerrors.OverloadedError{Reason: "expensive operation rate limit exceeded"})
		}
		opts := pathfinder.DefaultOptions()
		if req.MaxDepth > 0 {
			opts.MaxDepth = req.MaxDepth
		}
		if req.MaxPaths > 0 {
			opts.MaxPaths = req.MaxPaths
		}
		paths, err := s.engine.FindPaths(req.Source, req.Target, opts)
		if err != nil {
			return ErrorResponse(err)
		}
		out := make([]PathWire, len(paths))
		for i, p := range paths {
			out[i] = PathWire{Nodes: p.Nodes, Confidence: p.Confidence}
		}
		return Response{Tag: RespOK, Paths: out}

	case TagStats:
		st := s.engine.Stats()
		return Response{Tag: RespOK, Stats: StatsWire{
			Concepts: int64(st.Concepts), Associations: int64(st.Associations),
			Sequence: st.Sequence, QueueDepth: st.QueueDepth,
			ANNDegraded: st.ANNDegraded, ShardCount: int32(st.ShardCount),
		}}

	case TagFlush:
		seq, err := s.engine.Flush()
		if err != nil {
			return ErrorResponse(err)
		}
		return Response{Tag: RespOK, Sequence: seq}

	case TagBeginTxn:
		if !s.engine.SupportsTxn() {
			return ErrorResponse(&synerrors.ValidationError{Reason: "transactions require a sharded deployment"})
		}
		shards := make([]int, len(req.Shards))
		for i, sh := range req.Shards {
			shards[i] = int(sh)
		}
		if err := s.engine.BeginTxn(req.TxnID, shards); err != nil {
			return ErrorResponse(err)
		}
		return Response{Tag: RespOK, Status: "ok"}

	case TagCommitTxn:
		if !s.engine.SupportsTxn() {
			return ErrorResponse(&synerrors.ValidationError{Reason: "transactions require a sharded deployment"})
		}
		seqs, err := s.engine.CommitTxn(req.TxnID)
		if err != nil {
			return ErrorResponse(err)
		}
		return Response{Tag: RespOK, Status: "ok", Sequences: seqs}

	case TagAbortTxn:
		if !s.engine.SupportsTxn() {
			return ErrorResponse(&synerrors.ValidationError{Reason: "transactions require a sharded deployment"})
		}
		if err := s.engine.AbortTxn(req.TxnID); err != nil {
			return ErrorResponse(err)
		}
		return Response{Tag: RespOK, Status: "ok"}

	default:
		return ErrorResponse(&synerrors.ProtocolViolationError{Reason: "unhandled request tag"})
	}
}
