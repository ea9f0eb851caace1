package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"cluster-intelligence-be/internal/pkg/logger"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// QdrantConfig configures the Qdrant gRPC back end.
type QdrantConfig struct {
	Host   string
	Port   int // gRPC port, not the REST one
	UseTLS bool
	APIKey string

	MaxMessageSize int
	DialTimeout    time.Duration
	RequestTimeout time.Duration
	RetryAttempts  int
}

func DefaultQdrantConfig() *QdrantConfig {
	return &QdrantConfig{
		Host:           "localhost",
		Port:           6334,
		MaxMessageSize: 50 * 1024 * 1024,
		DialTimeout:    5 * time.Second,
		RequestTimeout: 30 * time.Second,
		RetryAttempts:  3,
	}
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	defaults := DefaultQdrantConfig()
	if c.Host == "" {
		c.Host = defaults.Host
	}
	if c.Port == 0 {
		c.Port = defaults.Port
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = defaults.MaxMessageSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaults.DialTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = defaults.RetryAttempts
	}
}

func (c *QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, c.Port)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: invalid max message size %d", ErrInvalidConfig, c.MaxMessageSize)
	}
	return nil
}

// QdrantStore scrolls collections held in Qdrant. A user collection's
// vector_ref is the Qdrant collection name.
type QdrantStore struct {
	client *qdrant.Client
	config *QdrantConfig
	logger logger.ILogger
}

var _ VectorStore = (*QdrantStore)(nil)

func NewQdrantStore(config *QdrantConfig, log logger.ILogger) (*QdrantStore, error) {
	if config == nil {
		config = DefaultQdrantConfig()
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	qdrantConfig := &qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		APIKey: config.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	}
	if !config.UseTLS {
		qdrantConfig.GrpcOptions = append(qdrantConfig.GrpcOptions,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}

	client, err := qdrant.NewClient(qdrantConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		log.Error(logger.ModuleVectorStore, "Qdrant health check failed", map[string]interface{}{
			"host":  config.Host,
			"port":  config.Port,
			"error": err.Error(),
		})
		return nil, fmt.Errorf("health check failed: %w", err)
	}

	log.Info(logger.ModuleVectorStore, "Qdrant connection established", map[string]interface{}{
		"host": config.Host,
		"port": config.Port,
	})

	return &QdrantStore{client: client, config: config, logger: log}, nil
}

func (s *QdrantStore) Scroll(ctx context.Context, collectionRef string, opts ScrollOptions) (*ScrollResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	req := &qdrant.ScrollPoints{
		CollectionName: collectionRef,
		Limit:          qdrant.PtrOf(uint32(ClampPageSize(opts.Limit))),
		WithPayload:    qdrant.NewWithPayload(opts.WithPayload),
		WithVectors:    qdrant.NewWithVectors(opts.WithVector),
	}
	if opts.Offset != "" {
		req.Offset = decodeOffset(opts.Offset)
	}

	var (
		points []*qdrant.RetrievedPoint
		next   *qdrant.PointId
	)
	err := s.retryOperation(ctx, func() error {
		var err error
		points, next, err = s.client.ScrollAndOffset(ctx, req)
		return err
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return &ScrollResult{}, nil
		}
		return nil, err
	}

	result := &ScrollResult{
		Points:     make([]*Point, 0, len(points)),
		NextOffset: encodeOffset(next),
	}
	for _, p := range points {
		result.Points = append(result.Points, convertRetrievedPoint(p))
	}
	return result, nil
}

func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// retryOperation retries transient gRPC failures with exponential backoff.
func (s *QdrantStore) retryOperation(ctx context.Context, operation func() error) error {
	var lastErr error
	backoff := 200 * time.Millisecond

	for attempt := 0; attempt <= s.config.RetryAttempts; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTransientError(err) || attempt == s.config.RetryAttempts {
			break
		}

		s.logger.Debug(logger.ModuleVectorStore, "Retrying qdrant operation", map[string]interface{}{
			"attempt": attempt + 1,
			"backoff": backoff.String(),
			"error":   err.Error(),
		})

		select {
		case <-ctx.Done():
			return fmt.Errorf("operation canceled: %w", ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return lastErr
}

func isTransientError(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

func encodeOffset(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	if n := id.GetNum(); n != 0 {
		return strconv.FormatUint(n, 10)
	}
	return ""
}

func decodeOffset(offset string) *qdrant.PointId {
	if n, err := strconv.ParseUint(offset, 10, 64); err == nil {
		return qdrant.NewIDNum(n)
	}
	return qdrant.NewIDUUID(offset)
}

func convertRetrievedPoint(p *qdrant.RetrievedPoint) *Point {
	return &Point{
		ID:      encodeOffset(p.GetId()),
		Vector:  extractVector(p.GetVectors()),
		Payload: extractPayload(p.GetPayload()),
	}
}

func extractVector(vectors *qdrant.VectorsOutput) []float32 {
	if vectors == nil {
		return nil
	}
	if vec := vectors.GetVector(); vec != nil {
		if dense := vec.GetDense(); dense != nil {
			return dense.GetData()
		}
	}
	return nil
}

func extractPayload(payload map[string]*qdrant.Value) map[string]interface{} {
	if payload == nil {
		return nil
	}
	result := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		result[k] = extractValue(v)
	}
	return result
}

func extractValue(v *qdrant.Value) interface{} {
	if v == nil {
		return nil
	}
	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	default:
		return nil
	}
}
