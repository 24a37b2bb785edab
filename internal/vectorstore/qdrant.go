package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/ctxfuse/internal/retrieval"
)

const backendQdrant = "qdrant"

// payloadID keeps the caller's record id; Qdrant point ids must be UUIDs.
const payloadID = "id"

// payloadFileNameLower holds the lowercased file name so keyword scrolls
// match case-insensitively. It carries no full-text index: Qdrant then
// evaluates text matches as plain substrings.
const payloadFileNameLower = "file_name_lower"

// keywordScanFactor bounds how many points a keyword scroll reads per
// requested document id.
const keywordScanFactor = 4

var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the gRPC port (6334), not the REST port.
	Port int

	// CollectionName holds every partition; namespaces are payload values.
	CollectionName string

	// VectorSize must match the embedder output.
	VectorSize uint64

	UseTLS bool
	APIKey string

	// MaxRetries is the number of retries for transient failures.
	MaxRetries int

	// RetryBackoff is the initial backoff; it doubles per retry.
	RetryBackoff time.Duration

	// CircuitBreakerThreshold is the failure count that opens the circuit.
	CircuitBreakerThreshold int

	// CircuitBreakerCooldown is how long the circuit stays open.
	CircuitBreakerCooldown time.Duration

	// MaxMessageSize caps gRPC messages in bytes.
	MaxMessageSize int

	// EnsureCollection creates the collection and payload indexes on startup.
	EnsureCollection bool
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
	if c.CircuitBreakerCooldown == 0 {
		c.CircuitBreakerCooldown = 30 * time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 16 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if !collectionNamePattern.MatchString(c.CollectionName) {
		return fmt.Errorf("%w: collection name must match %s, got %q", ErrInvalidConfig, collectionNamePattern, c.CollectionName)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// IsTransientError reports whether a gRPC error is worth retrying.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore serves all partitions from one collection. Every query
// carries a namespace Must condition in addition to the partition filter.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger

	circuitBreaker struct {
		mu       sync.Mutex
		failures int
		lastFail time.Time
	}

	// now is replaceable in tests.
	now func() time.Time
}

// NewQdrantStore connects, health-checks and optionally prepares the collection.
func NewQdrantStore(ctx context.Context, config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext (TLS disabled)", zap.String("host", config.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := newQdrantStore(client, config, logger)

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(hctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	if config.EnsureCollection {
		if err := s.ensureCollection(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return s, nil
}

func newQdrantStore(client *qdrant.Client, config QdrantConfig, logger *zap.Logger) *QdrantStore {
	return &QdrantStore{client: client, config: config, logger: logger, now: time.Now}
}

// ensureCollection creates the collection and keyword payload indexes.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.EnsureCollection")
	defer span.End()

	name := s.config.CollectionName
	var exists bool
	err := s.retryOperation(ctx, "collection_exists", func() error {
		var err error
		exists, err = s.client.CollectionExists(ctx, name)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("checking collection %s: %w", name, err)
	}
	if exists {
		return nil
	}

	err = s.retryOperation(ctx, "create_collection", func() error {
		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     s.config.VectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", name, err)
	}

	for _, field := range []string{retrieval.MetaNamespace, retrieval.MetaSourceType, retrieval.MetaRequesterID, retrieval.MetaDocumentID} {
		field := field
		err := s.retryOperation(ctx, "create_field_index", func() error {
			_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
				CollectionName: name,
				FieldName:      field,
				FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("indexing %s.%s: %w", name, field, err)
		}
	}

	s.logger.Info("qdrant collection created",
		zap.String("collection", name),
		zap.Uint64("vector_size", s.config.VectorSize),
	)
	return nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// retryOperation retries an operation with exponential backoff while the
// circuit is closed and the error is transient.
func (s *QdrantStore) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	if s.isCircuitOpen() {
		return fmt.Errorf("%s: %w", operationName, ErrCircuitOpen)
	}
	backoff := s.config.RetryBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			s.resetCircuitBreaker()
			return nil
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}

		s.recordFailure()
		if s.isCircuitOpen() {
			return fmt.Errorf("%s: %w: %v", operationName, ErrCircuitOpen, err)
		}
		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, s.config.MaxRetries, err)
		}

		retriesTotal.WithLabelValues(backendQdrant, operationName).Inc()
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

func (s *QdrantStore) recordFailure() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures++
	s.circuitBreaker.lastFail = s.now()
	if s.circuitBreaker.failures >= s.config.CircuitBreakerThreshold {
		circuitOpen.WithLabelValues(backendQdrant).Set(1)
	}
}

func (s *QdrantStore) resetCircuitBreaker() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures = 0
	circuitOpen.WithLabelValues(backendQdrant).Set(0)
}

func (s *QdrantStore) isCircuitOpen() bool {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()

	if s.circuitBreaker.failures < s.config.CircuitBreakerThreshold {
		return false
	}
	// Half-open: allow another attempt once the cooldown elapses.
	if s.now().Sub(s.circuitBreaker.lastFail) > s.config.CircuitBreakerCooldown {
		s.circuitBreaker.failures = 0
		circuitOpen.WithLabelValues(backendQdrant).Set(0)
		return false
	}
	return true
}

func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func textCondition(key, text string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Text{Text: text},
				},
			},
		},
	}
}

// buildFilter turns a partition filter into Must conditions, optionally
// scoped to a namespace.
func buildFilter(namespace string, filter map[string]string) *qdrant.Filter {
	must := make([]*qdrant.Condition, 0, len(filter)+1)
	if namespace != "" {
		must = append(must, keywordCondition(retrieval.MetaNamespace, namespace))
	}
	for _, k := range sortedKeys(filter) {
		must = append(must, keywordCondition(k, filter[k]))
	}
	return &qdrant.Filter{Must: must}
}

// keywordFilter matches the lowercased literal against the lowercased file
// name written at upsert.
func keywordFilter(literal string, filter map[string]string) *qdrant.Filter {
	f := buildFilter("", filter)
	f.Must = append(f.Must, textCondition(payloadFileNameLower, strings.ToLower(literal)))
	return f
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

// pointID derives a stable UUID for record ids that are not UUIDs.
func pointID(id string) *qdrant.PointId {
	if _, err := uuid.Parse(id); err == nil {
		return qdrant.NewIDUUID(id)
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

// payloadStrings flattens a Qdrant payload into string metadata.
func payloadStrings(payload map[string]*qdrant.Value) map[string]string {
	md := make(map[string]string, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		switch val := v.Kind.(type) {
		case *qdrant.Value_StringValue:
			md[k] = val.StringValue
		case *qdrant.Value_IntegerValue:
			md[k] = fmt.Sprintf("%d", val.IntegerValue)
		case *qdrant.Value_DoubleValue:
			md[k] = fmt.Sprintf("%g", val.DoubleValue)
		case *qdrant.Value_BoolValue:
			md[k] = fmt.Sprintf("%t", val.BoolValue)
		}
	}
	return md
}

// Upsert writes records with the namespace stored in the payload.
func (s *QdrantStore) Upsert(ctx context.Context, namespace string, records []Record) (err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()
	start := time.Now()
	defer func() { observe(backendQdrant, "upsert", start, err) }()

	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		if err := r.validate(int(s.config.VectorSize)); err != nil {
			return err
		}
		payload := make(map[string]*qdrant.Value, len(r.Extra)+8)
		for k, v := range r.Metadata() {
			payload[k] = stringValue(v)
		}
		payload[payloadID] = stringValue(r.ID)
		payload[retrieval.MetaNamespace] = stringValue(namespace)
		payload[retrieval.MetaText] = stringValue(r.Text)
		payload[payloadFileNameLower] = stringValue(strings.ToLower(r.FileName))

		points[i] = &qdrant.PointStruct{
			Id:      pointID(r.ID),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: payload,
		}
	}

	err = s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.CollectionName,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting into %s: %w", s.config.CollectionName, err)
	}
	span.SetAttributes(attribute.Int("points_added", len(points)))
	return nil
}

// VectorQuery runs a similarity query restricted to namespace and filter.
func (s *QdrantStore) VectorQuery(ctx context.Context, vector []float32, topK int, filter map[string]string, namespace string) (matches []retrieval.RawMatch, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.VectorQuery")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.config.CollectionName),
		attribute.String("namespace", namespace),
		attribute.Int("top_k", topK),
	)
	start := time.Now()
	defer func() {
		observe(backendQdrant, "vector_query", start, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if err := ValidateFilter(filter); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}
	if uint64(len(vector)) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d", ErrDimensionMismatch, len(vector), s.config.VectorSize)
	}

	var points []*qdrant.ScoredPoint
	err = s.retryOperation(ctx, "query", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.CollectionName,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(topK)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         buildFilter(namespace, filter),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.config.CollectionName, err)
	}

	matches = make([]retrieval.RawMatch, 0, len(points))
	for _, p := range points {
		md := payloadStrings(p.GetPayload())
		id := md[payloadID]
		if id == "" {
			id = p.GetId().GetUuid()
		}
		delete(md, payloadID)
		delete(md, payloadFileNameLower)
		text := md[retrieval.MetaText]
		delete(md, retrieval.MetaText)

		score := float64(p.GetScore())
		if score < 0 {
			score = 0
		}
		matches = append(matches, matchFromStrings(id, score, md, text))
	}
	span.SetAttributes(attribute.Int("results_count", len(matches)))
	return matches, nil
}

// KeywordSearch scrolls points whose file name contains the literal query,
// ignoring case.
func (s *QdrantStore) KeywordSearch(ctx context.Context, pattern string, filter map[string]string, limit int) (ids []string, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.KeywordSearch")
	defer span.End()
	start := time.Now()
	defer func() { observe(backendQdrant, "keyword_search", start, err) }()

	if err := ValidateFilter(filter); err != nil {
		return nil, err
	}
	literal := UnescapePattern(pattern)
	if limit <= 0 || literal == "" {
		return nil, nil
	}

	f := keywordFilter(literal, filter)

	var points []*qdrant.RetrievedPoint
	err = s.retryOperation(ctx, "scroll", func() error {
		res, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.config.CollectionName,
			Filter:         f,
			Limit:          qdrant.PtrOf(uint32(limit * keywordScanFactor)),
			WithPayload:    qdrant.NewWithPayloadInclude(retrieval.MetaDocumentID),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("keyword scroll on %s: %w", s.config.CollectionName, err)
	}

	seen := make(map[string]struct{}, len(points))
	for _, p := range points {
		docID := payloadStrings(p.GetPayload())[retrieval.MetaDocumentID]
		if docID == "" {
			continue
		}
		if _, dup := seen[docID]; dup {
			continue
		}
		seen[docID] = struct{}{}
		ids = append(ids, docID)
		if len(ids) == limit {
			break
		}
	}
	span.SetAttributes(attribute.Int("results_count", len(ids)))
	return ids, nil
}
