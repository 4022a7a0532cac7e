package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/fyrsmithlabs/medrag/internal/config"
	"github.com/fyrsmithlabs/medrag/internal/logging"
)

// Provider hands out a fresh Index for each pipeline run. It is safe for
// concurrent use.
type Provider interface {
	NewIndex(ctx context.Context) (Index, error)
	Close() error
}

// NewProvider creates a Provider based on the configuration:
//   - "chromem" (default): in-memory, no external dependencies
//   - "qdrant": requires an external Qdrant server
func NewProvider(cfg config.VectorStoreConfig, logger *logging.Logger) (Provider, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	switch cfg.Provider {
	case "chromem", "":
		return &ChromemProvider{logger: logger.Named("chromem")}, nil
	case "qdrant":
		client, err := NewQdrantClient(QdrantConfig{
			Host:   cfg.Qdrant.Host,
			Port:   cfg.Qdrant.Port,
			UseTLS: cfg.Qdrant.UseTLS,
			APIKey: cfg.Qdrant.APIKey.Value(),
		})
		if err != nil {
			return nil, err
		}
		return &QdrantProvider{client: client, points: client, logger: logger.Named("qdrant")}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider %q (supported: chromem, qdrant)", ErrInvalidConfig, cfg.Provider)
	}
}

// ChromemProvider creates in-memory indexes.
type ChromemProvider struct {
	logger *logging.Logger
}

// NewIndex returns an empty ChromemIndex.
func (p *ChromemProvider) NewIndex(ctx context.Context) (Index, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewChromemIndex(p.logger), nil
}

// Close is a no-op.
func (p *ChromemProvider) Close() error {
	return nil
}

// QdrantProvider creates per-run collections on a shared Qdrant connection.
type QdrantProvider struct {
	client *qdrant.Client
	points qdrantPoints
	logger *logging.Logger
}

// NewIndex returns an index bound to a new, not yet created collection.
func (p *QdrantProvider) NewIndex(ctx context.Context) (Index, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewQdrantIndex(p.points, p.logger), nil
}

// Close closes the gRPC connection.
func (p *QdrantProvider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
