package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/dmitrijs2005/intake/internal/common"
	"github.com/dmitrijs2005/intake/internal/logging"
	"github.com/dmitrijs2005/intake/internal/server/ledger"
)

// ResponseMessage is the authority's verdict as posted to the queue.
type ResponseMessage struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Recorder stores verdicts; *ledger.Ledger implements it.
type Recorder interface {
	RecordResponse(key string, status ledger.Status, message string) error
}

var newSQSClientFromConfig = func(cfg aws.Config, optFns ...func(*sqs.Options)) *sqs.Client {
	return sqs.NewFromConfig(cfg, optFns...)
}

// NewSQSClient builds a client for the response queue with the same
// credentials and endpoint as the drop bucket.
func NewSQSClient(ctx context.Context, c AWSConfig) (*sqs.Client, error) {
	cfg, err := loadAWSConfig(ctx, c)
	if err != nil {
		return nil, err
	}
	return newSQSClientFromConfig(cfg, func(o *sqs.Options) {
		if c.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(c.BaseEndpoint)
		}
	}), nil
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSResponseSource long-polls the authority's response queue and appends
// every verdict to the ledger. Malformed messages are deleted; messages
// that fail to record stay on the queue for redelivery.
type SQSResponseSource struct {
	client   sqsAPI
	recorder Recorder
	queueURL string
	logger   logging.Logger

	retryDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSQSResponseSource(parent context.Context, client *sqs.Client, recorder Recorder, queueURL string, logger logging.Logger) *SQSResponseSource {
	return newSQSResponseSource(parent, client, recorder, queueURL, logger)
}

func newSQSResponseSource(parent context.Context, client sqsAPI, recorder Recorder, queueURL string, logger logging.Logger) *SQSResponseSource {
	ctx, cancel := context.WithCancel(parent)
	return &SQSResponseSource{
		client:     client,
		recorder:   recorder,
		queueURL:   queueURL,
		logger:     logger.With("module", "sqs-responses"),
		retryDelay: time.Second,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *SQSResponseSource) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pollLoop()
	}()
}

func (s *SQSResponseSource) pollLoop() {
	for {
		if err := s.pollOnce(s.ctx); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Warn(s.ctx, "receive failed", "error", err)
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(s.retryDelay):
			}
		}
		if s.ctx.Err() != nil {
			return
		}
	}
}

func (s *SQSResponseSource) pollOnce(ctx context.Context) error {
	out, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(s.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20, // long poll
		VisibilityTimeout:   30,
	})
	if err != nil {
		return err
	}
	for _, msg := range out.Messages {
		s.handleMessage(ctx, msg)
	}
	return nil
}

func (s *SQSResponseSource) deleteMessage(ctx context.Context, msg types.Message) {
	_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		s.logger.Warn(ctx, "delete message failed", "error", err)
	}
}

func (s *SQSResponseSource) handleMessage(ctx context.Context, msg types.Message) {
	if msg.Body == nil {
		s.deleteMessage(ctx, msg)
		return
	}

	var m ResponseMessage
	if err := json.Unmarshal([]byte(*msg.Body), &m); err != nil || m.Name == "" {
		// poison message
		s.logger.Error(ctx, "dropping malformed response message", "body", *msg.Body)
		s.deleteMessage(ctx, msg)
		return
	}

	err := s.recorder.RecordResponse(m.Name, ledger.Status(m.Status), m.Message)
	switch {
	case errors.Is(err, common.ErrInvalidLedgerField):
		s.logger.Error(ctx, "dropping invalid response", "name", m.Name, "status", m.Status, "error", err)
		s.deleteMessage(ctx, msg)
		return
	case err != nil:
		// retry on redelivery
		s.logger.Error(ctx, "could not record response", "name", m.Name, "error", err)
		return
	}

	s.logger.Info(ctx, "authority response recorded", "name", m.Name, "status", m.Status)
	s.deleteMessage(ctx, msg)
}

func (s *SQSResponseSource) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
