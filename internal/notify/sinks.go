package notify

import (
	"context"
	"sync"

	"expensetracker/internal/amqp"
	"expensetracker/internal/log"
)

// LogSink writes notices to the structured log.
type LogSink struct {
	logger *log.Logger
}

func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.Discard()
	}
	return &LogSink{logger: logger.WithComponent(log.ComponentNotify)}
}

func (s *LogSink) Send(ctx context.Context, n Notice) error {
	s.logger.WarnContext(ctx, n.Summary,
		"detail", n.Detail,
		"source", n.Source,
		"trace_id", n.TraceID,
		"life", n.Life)
	return nil
}

// MemorySink keeps notices in memory for tests and polling UIs.
type MemorySink struct {
	mu      sync.Mutex
	notices []Notice
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Send(_ context.Context, n Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, n)
	return nil
}

// Notices returns a copy of everything received so far.
func (s *MemorySink) Notices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notice(nil), s.notices...)
}

// Drain returns and clears the received notices.
func (s *MemorySink) Drain() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notices
	s.notices = nil
	return out
}

// Publisher is the part of the AMQP client the sink needs.
type Publisher interface {
	PublishNotice(ctx context.Context, msg *amqp.NoticeMessage) error
}

// AMQPSink publishes notices as JSON messages.
type AMQPSink struct {
	pub Publisher
}

func NewAMQPSink(pub Publisher) *AMQPSink {
	return &AMQPSink{pub: pub}
}

func (s *AMQPSink) Send(ctx context.Context, n Notice) error {
	return s.pub.PublishNotice(ctx, ToMessage(n))
}

// ToMessage converts n to its wire form.
func ToMessage(n Notice) *amqp.NoticeMessage {
	return amqp.NewNoticeMessage(n.Severity, n.Summary, n.Detail, n.TraceID, n.Source, n.Life)
}

// FromMessage converts a received message back to a Notice.
func FromMessage(m *amqp.NoticeMessage) Notice {
	return Notice{
		Severity: m.Severity,
		Summary:  m.Summary,
		Detail:   m.Detail,
		TraceID:  m.TraceID,
		Source:   m.Source,
		Life:     m.Life(),
	}
}
