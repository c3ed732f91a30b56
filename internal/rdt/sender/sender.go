// Package sender coordinates the send window, RTO estimator, and
// congestion controller into the reliable byte-stream transmitter: the
// state machine spec describes as three collaborating components plus the
// retransmission timer they share.
package sender

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aetherflow/rdt-sender/internal/rdt/congestion"
	"github.com/aetherflow/rdt-sender/internal/rdt/csvlog"
	"github.com/aetherflow/rdt-sender/internal/rdt/protocol"
	"github.com/aetherflow/rdt-sender/internal/rdt/reliability"
	"github.com/aetherflow/rdt-sender/internal/rdt/rto"
	"github.com/aetherflow/rdt-sender/internal/rdt/telemetry"
	"github.com/aetherflow/rdt-sender/internal/rdt/transport"
	"github.com/aetherflow/rdt-sender/pkg/guuid"
)

// Sender drives one file transfer to completion. All of its state —
// send_base, next_seqno, the ring, the RTO estimator, the congestion
// controller, the duplicate-ACK detector, and the EOF phase flags — is
// mutated only by the goroutine running Run; the receive loop and the
// timer are pure event producers.
type Sender struct {
	conn  transport.Conn
	file  io.Reader
	close func() error

	logger *zap.Logger
	tracer *telemetry.Tracer
	csv    *csvlog.Writer
	pacer  *rate.Limiter

	ring       *reliability.Ring
	timestamps *reliability.TimestampTable
	rtoEst     *rto.Estimator
	cong       *congestion.Controller
	dupDet     dupAckDetector
	timer      *retransmitTimer

	sendBase  uint32
	nextSeqno uint32

	eofRead  bool
	eofSent  bool
	eofAcked bool
	finPkt   *protocol.Packet

	correlationID guuid.GUUID
	filePath      string
}

// Option customizes a Sender at construction time.
type Option func(*Sender)

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) Option { return func(s *Sender) { s.logger = l } }

// WithTracer attaches a telemetry.Tracer; without one, tracing is a no-op.
func WithTracer(t *telemetry.Tracer) Option { return func(s *Sender) { s.tracer = t } }

// WithCSV attaches a csvlog.Writer; nil disables CSV output (the field is
// already nil-safe).
func WithCSV(w *csvlog.Writer) Option { return func(s *Sender) { s.csv = w } }

// WithPacer attaches a token-bucket limiter that smooths the Fill step's
// sends; without one, sends are paced only by CWND admission.
func WithPacer(l *rate.Limiter) Option { return func(s *Sender) { s.pacer = l } }

// WithFilePath records the transfer's source path for logging and tracing.
func WithFilePath(p string) Option { return func(s *Sender) { s.filePath = p } }

// WithWindowLimits overrides the congestion controller's starting
// SSTHRESH and maximum window, in place of spec.md's fixed constants.
func WithWindowLimits(initialSSThresh, maxWindow int) Option {
	return func(s *Sender) { s.cong = congestion.NewControllerWithLimits(initialSSThresh, maxWindow) }
}

// WithRTOBounds overrides the RTO estimator's initial value and clamp
// bounds, in place of spec.md's fixed constants.
func WithRTOBounds(initial, min, max time.Duration) Option {
	return func(s *Sender) { s.rtoEst = rto.NewEstimatorWithBounds(initial, min, max) }
}

// New builds a Sender over conn, reading from file. closeFile is called
// exactly once, when the file reaches EOF.
func New(conn transport.Conn, file io.Reader, closeFile func() error, opts ...Option) (*Sender, error) {
	id, err := guuid.New()
	if err != nil {
		return nil, fmt.Errorf("sender: generate correlation id: %w", err)
	}

	s := &Sender{
		conn:          conn,
		file:          file,
		close:         closeFile,
		logger:        zap.NewNop(),
		ring:          reliability.NewRing(),
		timestamps:    reliability.NewTimestampTable(),
		rtoEst:        rto.NewEstimator(),
		cong:          congestion.NewController(),
		timer:         newRetransmitTimer(),
		correlationID: id,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		// telemetry.New never errors when disabled.
		s.tracer, _ = telemetry.New(telemetry.DefaultConfig(), s.logger)
	}
	return s, nil
}

type recvResult struct {
	pkt *protocol.Packet
	err error
}

// Run executes the sender loop until the FIN is acknowledged or ctx is
// canceled. It returns nil only on a successful FIN-ACK.
func (s *Sender) Run(ctx context.Context) error {
	ctx, span := s.tracer.StartTransfer(ctx, s.correlationID.String(), s.filePath)
	defer span.End()

	recvCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	recvCh := make(chan recvResult)
	go s.recvLoop(recvCtx, recvCh)

	s.logger.Info("transfer starting",
		zap.String("correlation_id", s.correlationID.String()),
		zap.Duration("initial_rto", s.rtoEst.RTO()),
	)

	for {
		if s.eofAcked {
			s.logger.Info("transfer complete", zap.String("correlation_id", s.correlationID.String()))
			return nil
		}

		if err := s.fill(ctx); err != nil {
			return err
		}
		if err := s.dispatchFin(); err != nil {
			return err
		}

		select {
		case res := <-recvCh:
			if res.err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Warn("transport receive error, continuing", zap.Error(res.err))
				continue
			}
			if err := s.handleAck(ctx, res.pkt); err != nil {
				return err
			}
		case <-s.timer.C():
			if err := s.handleTimeout(ctx); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Sender) recvLoop(ctx context.Context, out chan<- recvResult) {
	for {
		pkt, err := s.conn.Receive(ctx)
		select {
		case out <- recvResult{pkt: pkt, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil && ctx.Err() != nil {
			return
		}
	}
}

// admits reports whether next_seqno has room under the current congestion
// window: next_seqno < send_base + cwnd*PAYLOAD_MAX.
func (s *Sender) admits() bool {
	cwnd := uint64(s.cong.CWND())
	return uint64(s.nextSeqno) < uint64(s.sendBase)+cwnd*uint64(protocol.PayloadMax)
}

func (s *Sender) fill(ctx context.Context) error {
	for !s.eofRead && s.admits() {
		buf := make([]byte, protocol.PayloadMax)
		n, err := s.file.Read(buf)
		if n == 0 {
			if err != nil && err != io.EOF {
				return fmt.Errorf("sender: read input file: %w", err)
			}
			s.eofRead = true
			s.finPkt = protocol.NewFinPacket()
			if s.close != nil {
				if cerr := s.close(); cerr != nil {
					s.logger.Warn("error closing input file", zap.Error(cerr))
				}
			}
			break
		}

		if s.pacer != nil {
			if werr := s.pacer.WaitN(ctx, 1); werr != nil {
				return fmt.Errorf("sender: pacer wait: %w", werr)
			}
		}

		seqNo := s.nextSeqno
		pkt := protocol.NewDataPacket(seqNo, buf[:n])
		s.ring.Store(pkt)
		firstInFlight := seqNo == s.sendBase
		s.timestamps.Record(seqNo, time.Now(), false)

		if err := s.conn.Send(pkt); err != nil {
			return fmt.Errorf("sender: send data packet: %w", err)
		}
		s.nextSeqno += uint32(n)

		if firstInFlight {
			s.armTimer()
		}
		// A short final read that still returned n>0 bytes alongside
		// io.EOF is handled by the next Fill iteration's zero-byte read,
		// which flips eof_read.
	}
	return nil
}

func (s *Sender) dispatchFin() error {
	if s.eofRead && !s.eofSent && s.sendBase == s.nextSeqno {
		if err := s.conn.Send(s.finPkt); err != nil {
			return fmt.Errorf("sender: send FIN: %w", err)
		}
		s.eofSent = true
		s.armTimer()
		s.logger.Debug("FIN dispatched", zap.Uint32("send_base", s.sendBase))
	}
	return nil
}

func (s *Sender) armTimer() {
	s.timer.Arm(s.rtoEst.RTO())
}

func (s *Sender) handleAck(ctx context.Context, pkt *protocol.Packet) error {
	ackNo := pkt.Header.AckNo

	if ackNo > s.nextSeqno {
		s.logger.Warn("protocol anomaly: ack outside window",
			zap.Uint32("ack_no", ackNo), zap.Uint32("next_seqno", s.nextSeqno))
		return nil
	}

	switch {
	case s.eofSent && pkt.Header.Flags == protocol.FIN && ackNo >= s.nextSeqno:
		s.eofAcked = true
		s.timer.Disarm()
		s.tracer.AddEvent(ctx, "fin_acked")
		return nil

	case ackNo > s.sendBase:
		return s.handleNewAck(ctx, ackNo)

	case ackNo == s.sendBase:
		return s.handleDuplicateAck(ctx, ackNo)

	default:
		s.logger.Warn("protocol anomaly: stale ack below send_base",
			zap.Uint32("ack_no", ackNo), zap.Uint32("send_base", s.sendBase))
		return nil
	}
}

func (s *Sender) handleNewAck(ctx context.Context, ackNo uint32) error {
	s.dupDet.Reset()

	retired := s.ring.RetiredBelow(ackNo)
	for range retired {
		s.cong.OnNewAck()
	}

	if len(retired) > 0 {
		last := retired[len(retired)-1]
		if sample, ok := s.timestamps.Lookup(last.Header.SeqNo); ok {
			if !sample.Retransmitted {
				s.rtoEst.Sample(time.Since(sample.SentAt))
			}
			s.timestamps.Forget(last.Header.SeqNo)
		}
	}

	s.ring.ReleaseBelow(ackNo)
	s.sendBase = ackNo

	if s.sendBase < s.nextSeqno {
		s.armTimer()
	} else {
		s.timer.Disarm()
	}

	s.logCongestionState(ctx, "new_ack")
	return nil
}

func (s *Sender) handleDuplicateAck(ctx context.Context, ackNo uint32) error {
	if !s.dupDet.Observe(ackNo) {
		return nil
	}

	s.cong.OnTripleDupAck()

	pkt, ok := s.ring.Get(s.sendBase)
	if !ok {
		s.logger.Warn("protocol anomaly: missing ring slot for fast retransmit",
			zap.Uint32("send_base", s.sendBase))
		s.logCongestionState(ctx, "triple_dup_ack")
		return nil
	}

	if err := s.conn.Send(pkt); err != nil {
		return fmt.Errorf("sender: fast retransmit: %w", err)
	}
	s.timestamps.Record(pkt.Header.SeqNo, time.Now(), true)

	s.logger.Info("fast retransmit", zap.Uint32("seqno", pkt.Header.SeqNo))
	s.tracer.AddEvent(ctx, "fast_retransmit", attribute.Int("seqno", int(pkt.Header.SeqNo)))
	s.logCongestionState(ctx, "triple_dup_ack")
	return nil
}

func (s *Sender) handleTimeout(ctx context.Context) error {
	s.cong.OnTimeout()
	s.rtoEst.Timeout()

	if s.eofSent && !s.eofAcked {
		if err := s.conn.Send(s.finPkt); err != nil {
			return fmt.Errorf("sender: retransmit FIN: %w", err)
		}
		s.logger.Info("FIN retransmit on timeout")
	} else if pkt, ok := s.ring.Get(s.sendBase); ok {
		if err := s.conn.Send(pkt); err != nil {
			return fmt.Errorf("sender: retransmit on timeout: %w", err)
		}
		s.timestamps.Record(pkt.Header.SeqNo, time.Now(), true)
		s.logger.Info("timeout retransmit", zap.Uint32("seqno", pkt.Header.SeqNo))
	} else {
		s.logger.Warn("protocol anomaly: missing ring slot on timeout",
			zap.Uint32("send_base", s.sendBase))
	}

	s.armTimer()
	s.tracer.AddEvent(ctx, "timeout", attribute.Stringer("rto", s.rtoEst.RTO()))
	s.logCongestionState(ctx, "timeout")
	return nil
}

func (s *Sender) logCongestionState(ctx context.Context, cause string) {
	stats := s.cong.Statistics()
	s.logger.Debug("congestion state",
		zap.String("cause", cause),
		zap.Any("cwnd", stats["cwnd"]),
		zap.Any("ssthresh", stats["ssthresh"]),
		zap.Any("state", stats["state"]),
		zap.Uint32("send_base", s.sendBase),
		zap.Uint32("next_seqno", s.nextSeqno),
	)
	s.tracer.AddEvent(ctx, "congestion_state",
		attribute.String("cause", cause),
		attribute.Int("cwnd", stats["cwnd"].(int)),
		attribute.Int("ssthresh", stats["ssthresh"].(int)),
		attribute.String("state", stats["state"].(string)),
	)
	if s.csv != nil {
		if err := s.csv.Record(time.Now(), stats["cwnd_or_fractional"].(float64), stats["ssthresh"].(int)); err != nil {
			s.logger.Warn("csv log write failed", zap.Error(err))
		}
	}
}

// Close releases the CSV writer and the transport connection, returning
// the first error encountered.
func (s *Sender) Close() error {
	var firstErr error
	if err := s.csv.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("sender: close csv log: %w", err)
	}
	if err := s.conn.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("sender: close transport: %w", err)
	}
	return firstErr
}
