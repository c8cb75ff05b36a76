package gate

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// MessageHandler returns nil when the message can be deleted from the queue.
type MessageHandler interface {
	Handle(ctx context.Context, body string) error
}

type SQSConsumer struct {
	sqsClient  sqsAPI
	queueURL   string
	handler    MessageHandler
	retryDelay time.Duration
}

func NewSQSConsumer(client *sqs.Client, queueURL string, handler MessageHandler) *SQSConsumer {
	return &SQSConsumer{
		sqsClient:  client,
		queueURL:   queueURL,
		handler:    handler,
		retryDelay: 5 * time.Second,
	}
}

// Start long-polls the queue until ctx is cancelled.
func (c *SQSConsumer) Start(ctx context.Context) {
	log.Printf("SQS Consumer: listening on queue %s", c.queueURL)
	for {
		select {
		case <-ctx.Done():
			log.Println("SQS Consumer: context cancelled, stopping.")
			return
		default:
		}
		if !c.poll(ctx) {
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				log.Println("SQS Consumer: context cancelled while waiting for retry.")
				return
			}
		}
	}
}

// poll handles one batch. It returns false if receiving failed.
func (c *SQSConsumer) poll(ctx context.Context) bool {
	result, err := c.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &c.queueURL,
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
		VisibilityTimeout:   60,
	})
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("SQS Consumer: error receiving messages: %v", err)
		}
		return false
	}
	if len(result.Messages) == 0 {
		return true
	}
	log.Printf("SQS Consumer: received %d message(s)", len(result.Messages))

	for _, message := range result.Messages {
		if message.Body == nil {
			log.Println("SQS Consumer: message with empty body, deleting")
			c.deleteMessage(ctx, message.ReceiptHandle)
			continue
		}
		if err := c.handler.Handle(ctx, *message.Body); err != nil {
			id := ""
			if message.MessageId != nil {
				id = *message.MessageId
			}
			log.Printf("SQS Consumer: error processing message %s: %v. It will be redelivered after the visibility timeout.", id, err)
			continue
		}
		c.deleteMessage(ctx, message.ReceiptHandle)
	}
	return true
}

func (c *SQSConsumer) deleteMessage(ctx context.Context, receiptHandle *string) {
	if receiptHandle == nil {
		log.Println("SQS Consumer: empty receipt handle, cannot delete message")
		return
	}
	_, err := c.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &c.queueURL,
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		log.Printf("SQS Consumer: error deleting message: %v", err)
	}
}
