package ssm

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rolegate/rolegate/internal/config"
)

// Secrets retrieves named secrets from SSM Parameter Store.
type Secrets interface {
	Get(ctx context.Context, name string) (string, error)
}

type store struct {
	client *ssm.Client

	mu    sync.RWMutex
	cache map[string]string
}

func NewStore(cfg *config.Config) (Secrets, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		return nil, err
	}
	return &store{
		client: ssm.NewFromConfig(awsCfg),
		cache:  make(map[string]string),
	}, nil
}

// Get fetches a decrypted parameter, caching it for the process lifetime.
// Rotation requires a restart, which is fine for bot credentials.
func (s *store) Get(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	v, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return v, nil
	}

	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", err
	}
	v = aws.ToString(out.Parameter.Value)

	s.mu.Lock()
	s.cache[name] = v
	s.mu.Unlock()
	return v, nil
}
