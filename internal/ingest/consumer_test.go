package ingest_test

import (
	"bytes"
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	amqp "github.com/rabbitmq/amqp091-go"

	"smtrack.dev/telemetry-hub/internal/ingest"
	"smtrack.dev/telemetry-hub/pkg/logger"
	"smtrack.dev/telemetry-hub/pkg/mq/mock"
)

// fakeAcknowledger records ack and nack outcomes for a delivery.
type fakeAcknowledger struct {
	mu    sync.Mutex
	acks  int
	nacks []bool // requeue flag per nack
}

func (f *fakeAcknowledger) Ack(uint64, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
	return nil
}

func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacks = append(f.nacks, requeue)
	return nil
}

func (f *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	return f.Nack(0, false, requeue)
}

func (f *fakeAcknowledger) ackCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acks
}

func (f *fakeAcknowledger) nackRequeues() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.nacks...)
}

var _ = Describe("Consumer", func() {
	var (
		client     *mock.MockClient
		deliveries chan amqp.Delivery
		handled    chan []byte
		consumer   *ingest.Consumer
		cancel     context.CancelFunc
	)

	BeforeEach(func() {
		client = mock.NewMockClient()
		client.Queue = ingest.LogQueue
		deliveries = make(chan amqp.Delivery, 10)
		client.ConsumeChannel = deliveries
		handled = make(chan []byte, 10)

		var err error
		consumer, err = ingest.NewConsumer(&ingest.ConsumerConfig{
			Logger: logger.NewDefault(),
			Client: client,
			// Bodies prefixed "poison" fail deterministically.
			Handler: func(_ context.Context, body []byte) error {
				handled <- body
				if bytes.HasPrefix(body, []byte("poison")) {
					return errors.New("cannot process")
				}
				return nil
			},
		})
		Expect(err).NotTo(HaveOccurred())

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		Expect(consumer.Start(ctx)).To(Succeed())
	})

	AfterEach(func() {
		cancel()
	})

	It("should acknowledge a successfully handled message", func() {
		ack := &fakeAcknowledger{}
		deliveries <- amqp.Delivery{Acknowledger: ack, Body: []byte(`{"id":"r1"}`)}

		Eventually(handled).Should(Receive(Equal([]byte(`{"id":"r1"}`))))
		Eventually(ack.ackCount).Should(Equal(1))
		Expect(ack.nackRequeues()).To(BeEmpty())
	})

	It("should reject a poison message without requeue", func() {
		ack := &fakeAcknowledger{}
		deliveries <- amqp.Delivery{Acknowledger: ack, Body: []byte("poison {garbage")}

		Eventually(handled).Should(Receive())
		Eventually(ack.nackRequeues).Should(Equal([]bool{false}))
		Expect(ack.ackCount()).To(BeZero())
	})

	It("should keep consuming after a failed message", func() {
		bad := &fakeAcknowledger{}
		good := &fakeAcknowledger{}
		deliveries <- amqp.Delivery{Acknowledger: bad, Body: []byte("poison")}
		deliveries <- amqp.Delivery{Acknowledger: good, Body: []byte("good")}

		Eventually(handled).Should(Receive(Equal([]byte("poison"))))
		Eventually(handled).Should(Receive(Equal([]byte("good"))))
		Eventually(good.ackCount).Should(Equal(1))
		Expect(bad.nackRequeues()).To(Equal([]bool{false}))
	})

	It("should close the client and drain on Stop", func() {
		cancel()
		Expect(consumer.Stop()).To(Succeed())
		Expect(client.CloseCalls).To(Equal(1))
	})
})

var _ = Describe("NewConsumer", func() {
	It("should reject a nil config", func() {
		_, err := ingest.NewConsumer(nil)
		Expect(err).To(HaveOccurred())
	})

	It("should reject a missing handler", func() {
		_, err := ingest.NewConsumer(&ingest.ConsumerConfig{
			Logger: logger.NewDefault(),
			Client: mock.NewMockClient(),
		})
		Expect(err).To(HaveOccurred())
	})
})
