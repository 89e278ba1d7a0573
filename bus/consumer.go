package bus

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
	kafka "github.com/segmentio/kafka-go"

	"github.com/mqy/wabiz/engine"
)

// Processor applies one webhook body.
type Processor interface {
	Process(ctx context.Context, body []byte) ([]*engine.Result, error)
}

// Consumer reads queued webhook envelopes and processes them in order.
// An envelope is committed after it was processed: a crash replays it, which
// ingestion absorbs as duplicates.
type Consumer struct {
	proc        Processor
	kafkaReader IKafkaReader
	maxBytes    int
	wg          sync.WaitGroup
}

func NewConsumer(proc Processor, kafkaReader IKafkaReader, maxBytes int) *Consumer {
	return &Consumer{
		proc:        proc,
		kafkaReader: kafkaReader,
		maxBytes:    maxBytes,
	}
}

// Run consumes until ctx is done, then closes the reader.
func (c *Consumer) Run(ctx context.Context, stopDoneNotifyC chan<- struct{}) {
	c.wg.Add(1)
	go c.consumeLoop(ctx)

	glog.Info("consumer: ready")
	<-ctx.Done()

	glog.Info("consumer: stopping")
	_ = c.kafkaReader.Close()

	c.wg.Wait()
	glog.Info("consumer: stopped")
	stopDoneNotifyC <- struct{}{}
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	glog.Info("consumer: consume loop enter")
	defer func() {
		glog.Info("consumer: consume loop exited")
		c.wg.Done()
	}()

	var sleep time.Duration

	for {
		glog.V(5).Info("consumer: fetching message ...")
		msg, err := c.kafkaReader.FetchMessage(ctx)
		if err != nil {
			glog.Errorf("consumer: fetch from kafka err: %v", err)
			if err == context.Canceled || ctx.Err() != nil {
				return
			}
			backoff(&sleep)
			select {
			case <-time.After(sleep):
				continue
			case <-ctx.Done():
				return
			}
		}
		sleep = 0

		c.process(ctx, &msg)

		for {
			if err := c.kafkaReader.CommitMessages(ctx, msg); err == nil {
				sleep = 0
				break
			} else {
				// Not committed: it is fetched again after restart.
				glog.Errorf("consumer: commit to kafka err: %v", err)
				if err == context.Canceled || ctx.Err() != nil {
					return
				}
				backoff(&sleep)
				select {
				case <-time.After(sleep):
					continue
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// process skips values that are too large or not an envelope.
func (c *Consumer) process(ctx context.Context, msg *kafka.Message) {
	if c.maxBytes > 0 && len(msg.Value) > c.maxBytes {
		glog.Errorf("consumer: value out of limit, offset: %d, size: %d", msg.Offset, len(msg.Value))
		return
	}
	results, err := c.proc.Process(ctx, msg.Value)
	if err != nil {
		glog.Errorf("consumer: skip bad envelope, offset: %d, err: %v", msg.Offset, err)
		return
	}
	glog.V(5).Infof("consumer: offset %d processed, %d notifications", msg.Offset, len(results))
}
