// Package notify отправляет письма о завершённых заказах через Amazon SES.
package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	log "github.com/sirupsen/logrus"
)

// EmailConfig — настройки SES-отправителя.
type EmailConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Sender — подтверждённый в SES адрес отправителя.
	Sender string
	// Recipient — адрес бэк-офиса, получающий уведомления о выдаче заказов.
	Recipient string
}

// Enabled сообщает, достаточно ли конфигурации для отправки писем.
func (c EmailConfig) Enabled() bool {
	return c.Region != "" && c.Sender != "" && c.Recipient != ""
}

// sesClient покрывает используемую часть SES API.
type sesClient interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailSender отправляет уведомления о завершённых заказах.
type EmailSender struct {
	client sesClient
	cfg    EmailConfig
	logger *log.Entry
}

// NewEmailSender создаёт отправителя поверх SES.
func NewEmailSender(ctx context.Context, cfg EmailConfig, logger *log.Entry) (*EmailSender, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("email notifications are not configured")
	}
	if logger == nil {
		logger = log.New().WithField("component", "notify")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &EmailSender{
		client: ses.NewFromConfig(awsCfg),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// newEmailSenderWithClient используется тестами для подмены SES-клиента.
func newEmailSenderWithClient(client sesClient, cfg EmailConfig, logger *log.Entry) *EmailSender {
	if logger == nil {
		logger = log.New().WithField("component", "notify")
	}
	return &EmailSender{client: client, cfg: cfg, logger: logger}
}

// CompletedOrder — данные письма о выданном заказе.
type CompletedOrder struct {
	OrderID     string
	CustomerID  string
	AmountMinor int64
}

// SendOrderCompleted отправляет письмо о завершении заказа.
func (s *EmailSender) SendOrderCompleted(ctx context.Context, order CompletedOrder) error {
	if order.OrderID == "" {
		return fmt.Errorf("order id is empty")
	}

	subject := fmt.Sprintf("Order %s completed", order.OrderID)
	bodyText := fmt.Sprintf(
		"Order %s for customer %s has been completed.\nTotal amount (minor units): %d\n",
		order.OrderID, order.CustomerID, order.AmountMinor,
	)

	input := &ses.SendEmailInput{
		Source: aws.String(s.cfg.Sender),
		Destination: &types.Destination{
			ToAddresses: []string{s.cfg.Recipient},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Charset: aws.String("UTF-8"),
				Data:    aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Charset: aws.String("UTF-8"),
					Data:    aws.String(bodyText),
				},
			},
		},
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("send completion email: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"order_id":  order.OrderID,
		"recipient": s.cfg.Recipient,
	}).Info("order completion email sent")
	return nil
}
