package kms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	awskms "github.com/aws/aws-sdk-go/service/kms"
	"github.com/aws/aws-sdk-go/service/kms/kmsiface"
	"github.com/ruteri/kms-identity/interfaces"
)

// AWSConfig holds the connection settings of an AWS KMS client. Empty
// credentials fall back to the SDK's default chain (environment, shared
// config, instance role).
type AWSConfig struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Profile   string
}

// AWSKeyService adapts AWS KMS to interfaces.KeyService.
type AWSKeyService struct {
	client kmsiface.KMSAPI
	log    *slog.Logger
}

var _ interfaces.KeyService = (*AWSKeyService)(nil)

// NewAWSKeyService wraps an existing KMS client. The client may be shared
// between several identities.
func NewAWSKeyService(client kmsiface.KMSAPI, log *slog.Logger) *AWSKeyService {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &AWSKeyService{client: client, log: log}
}

// NewAWSKeyServiceFromConfig creates a KMS client from cfg.
func NewAWSKeyServiceFromConfig(cfg AWSConfig, log *slog.Logger) (*AWSKeyService, error) {
	awsCfg := aws.Config{}
	if cfg.Region != "" {
		awsCfg.Region = aws.String(cfg.Region)
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}

	switch {
	case cfg.AccessKey != "" && cfg.SecretKey != "":
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	case cfg.AccessKey != "" || cfg.SecretKey != "":
		return nil, fmt.Errorf("%w: aws access key and secret key must be set together", interfaces.ErrInvalidConfig)
	}

	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            awsCfg,
		Profile:           cfg.Profile,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return NewAWSKeyService(awskms.New(sess), log), nil
}

// GetPublicKey returns the DER SubjectPublicKeyInfo of keyID.
func (s *AWSKeyService) GetPublicKey(ctx context.Context, keyID string) ([]byte, error) {
	start := time.Now()
	out, err := s.client.GetPublicKeyWithContext(ctx, &awskms.GetPublicKeyInput{
		KeyId: aws.String(keyID),
	})
	if err != nil {
		return nil, awsServiceError(err)
	}

	if out.KeyUsage != nil && *out.KeyUsage != awskms.KeyUsageTypeSignVerify {
		return nil, &interfaces.ServiceError{
			Service: "aws-kms",
			Code:    "InvalidKeyUsage",
			Message: fmt.Sprintf("key usage is %s, want %s", *out.KeyUsage, awskms.KeyUsageTypeSignVerify),
		}
	}

	s.log.Debug("Fetched public key from AWS KMS",
		slog.String("key_id", keyID),
		slog.String("key_spec", aws.StringValue(out.KeySpec)),
		slog.Duration("duration", time.Since(start)))

	return out.PublicKey, nil
}

// Sign returns the DER signature produced by AWS KMS.
func (s *AWSKeyService) Sign(ctx context.Context, req interfaces.SignRequest) ([]byte, error) {
	var messageType string
	switch req.Mode {
	case interfaces.SigningModeDigest:
		messageType = awskms.MessageTypeDigest
	case interfaces.SigningModeMessage:
		messageType = awskms.MessageTypeRaw
	default:
		return nil, fmt.Errorf("%w: unknown signing mode %q", interfaces.ErrInvalidConfig, req.Mode)
	}

	start := time.Now()
	out, err := s.client.SignWithContext(ctx, &awskms.SignInput{
		KeyId:            aws.String(req.KeyID),
		Message:          req.Message,
		MessageType:      aws.String(messageType),
		SigningAlgorithm: aws.String(string(req.Algorithm)),
	})
	if err != nil {
		return nil, awsServiceError(err)
	}

	s.log.Debug("Signed with AWS KMS",
		slog.String("key_id", req.KeyID),
		slog.String("message_type", messageType),
		slog.Duration("duration", time.Since(start)))

	return out.Signature, nil
}

// awsServiceError keeps the AWS error code and message as diagnostic text.
func awsServiceError(err error) error {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return &interfaces.ServiceError{
			Service: "aws-kms",
			Code:    aerr.Code(),
			Message: aerr.Message(),
			Err:     err,
		}
	}
	return &interfaces.ServiceError{Service: "aws-kms", Message: err.Error(), Err: err}
}
