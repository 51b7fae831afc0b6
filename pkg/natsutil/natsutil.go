// Package natsutil publishes JSON documents to NATS with OpenTelemetry trace
// propagation.
package natsutil

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Publish serializes v as JSON and publishes to the given subject.
// Trace context from ctx is injected into NATS message headers.
func Publish[T any](ctx context.Context, nc *nats.Conn, subject string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
	}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	return nc.PublishMsg(msg)
}

const flushTimeout = 5 * time.Second

// Publisher sends every value to one subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// Connect dials url and returns a Publisher bound to subject.
func Connect(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("vendorprobe"), nats.Timeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("natsutil: connect %s: %w", url, err)
	}
	return &Publisher{nc: nc, subject: subject}, nil
}

// Publish sends v and flushes so the message is on the wire before a
// short-lived process exits.
func (p *Publisher) Publish(ctx context.Context, v any) error {
	if err := Publish(ctx, p.nc, p.subject, v); err != nil {
		return fmt.Errorf("natsutil: publish %s: %w", p.subject, err)
	}
	if err := p.nc.FlushTimeout(flushTimeout); err != nil {
		return fmt.Errorf("natsutil: flush: %w", err)
	}
	return nil
}

// Close closes the connection.
func (p *Publisher) Close() {
	p.nc.Close()
}
