package semantic

import (
	"context"
	"fmt"

	"github.com/VeritasAI/veritas-engine/engine/domain"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Payload keys reserved by the store; everything else is chunk metadata.
const (
	payloadChunkID = "chunk_id"
	payloadText    = "text"
)

// pointsAPI is the subset of pb.PointsClient the store uses.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// collectionsAPI is the subset of pb.CollectionsClient the store uses.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// QdrantStore is a vector record store backed by a Qdrant collection. A
// collection ranks with one fixed distance, chosen at creation, so the store
// is bound to a single metric; Search rejects requests for any other.
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	metric      Metric
}

// NewQdrant creates a QdrantStore connected to Qdrant at the given gRPC address.
func NewQdrant(addr, collection string, metric Metric) (*QdrantStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &QdrantStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		metric:      metric,
	}, nil
}

// NewQdrantWithClients creates a QdrantStore from existing clients. Used in tests.
func NewQdrantWithClients(points pointsAPI, collections collectionsAPI, collection string, metric Metric) *QdrantStore {
	return &QdrantStore{
		points:      points,
		collections: collections,
		collection:  collection,
		metric:      metric,
	}
}

// Close closes the underlying gRPC connection.
func (q *QdrantStore) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

// Metric returns the metric the collection ranks with.
func (q *QdrantStore) Metric() Metric { return q.metric }

func qdrantDistance(m Metric) pb.Distance {
	switch m {
	case Euclidean:
		return pb.Distance_Euclid
	case Manhattan:
		return pb.Distance_Manhattan
	case DotProduct:
		return pb.Distance_Dot
	default:
		return pb.Distance_Cosine
	}
}

// EnsureCollection creates the collection if it doesn't exist, with the
// store's metric as the collection distance.
func (q *QdrantStore) EnsureCollection(ctx context.Context, dims int) error {
	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == q.collection {
			return nil
		}
	}

	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: qdrantDistance(q.metric),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", q.collection, err)
	}
	return nil
}

// DeleteCollection deletes the collection.
func (q *QdrantStore) DeleteCollection(ctx context.Context) error {
	_, err := q.collections.Delete(ctx, &pb.DeleteCollection{
		CollectionName: q.collection,
	})
	if err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", q.collection, err)
	}
	return nil
}

// Upsert stores chunks into the collection. Point IDs are derived
// deterministically from chunk IDs so re-ingestion overwrites.
func (q *QdrantStore) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(chunks))
	for i, c := range chunks {
		payload := make(map[string]*pb.Value, len(c.Metadata)+2)
		payload[payloadChunkID] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: c.ID}}
		payload[payloadText] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: c.Text}}
		for k, v := range c.Metadata {
			payload[k] = toQdrantValue(v)
		}

		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: uuid.NewSHA1(uuid.NameSpaceOID, []byte(c.ID)).String()},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: c.Embedding},
				},
			},
			Payload: payload,
		}
	}

	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(chunks), err)
	}
	return nil
}

// DeleteByDoc removes all points whose doc_id metadata matches. Used for
// re-ingestion.
func (q *QdrantStore) DeleteByDoc(ctx context.Context, docID string) error {
	wait := true
	_, err := q.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{keywordMatch(domain.MetaDocID, docID)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete by doc_id %s: %w", docID, err)
	}
	return nil
}

// Search performs k-NN search with optional metadata filtering. The metric
// must be the one the collection was created with. Vectors are requested back
// so callers can re-score chunks against the question.
func (q *QdrantStore) Search(ctx context.Context, embedding []float32, k int, metric Metric, filter Filter) ([]Scored, error) {
	if metric != q.metric {
		return nil, fmt.Errorf("semantic: search: collection %s ranks with %s, not %s",
			q.collection, q.metric, metric)
	}

	req := &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         embedding,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
	}

	if len(filter) > 0 {
		must, err := qdrantConditions(filter)
		if err != nil {
			return nil, fmt.Errorf("semantic: search: %w", err)
		}
		req.Filter = &pb.Filter{Must: must}
	}

	resp, err := q.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}
	if len(resp.GetResult()) == 0 {
		return nil, fmt.Errorf("semantic: search: %w", domain.ErrEmptyStore)
	}

	results := make([]Scored, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		c := Chunk{
			Embedding: r.GetVectors().GetVector().GetData(),
			Metadata:  domain.Metadata{},
		}
		for k, val := range r.GetPayload() {
			switch k {
			case payloadChunkID:
				c.ID = val.GetStringValue()
			case payloadText:
				c.Text = val.GetStringValue()
			default:
				c.Metadata[k] = fromQdrantValue(val)
			}
		}
		results[i] = Scored{Chunk: c, Score: float64(r.GetScore())}
	}
	return results, nil
}

// qdrantConditions translates a Filter into Qdrant must-conditions.
func qdrantConditions(filter Filter) ([]*pb.Condition, error) {
	must := make([]*pb.Condition, 0, len(filter))
	for key, cond := range filter {
		if cond.Equals != nil {
			c, err := matchCondition(key, cond.Equals)
			if err != nil {
				return nil, err
			}
			must = append(must, c)
		}
		if len(cond.In) > 0 {
			keywords := make([]string, 0, len(cond.In))
			for _, v := range cond.In {
				s, ok := v.(string)
				if !ok {
					return nil, fmt.Errorf("filter %s: in-set values must be strings, got %T", key, v)
				}
				keywords = append(keywords, s)
			}
			must = append(must, &pb.Condition{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key: key,
						Match: &pb.Match{
							MatchValue: &pb.Match_Keywords{Keywords: &pb.RepeatedStrings{Strings: keywords}},
						},
					},
				},
			})
		}
		if cond.GTE != nil || cond.LTE != nil || cond.GT != nil || cond.LT != nil {
			must = append(must, &pb.Condition{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key:   key,
						Range: &pb.Range{Gte: cond.GTE, Lte: cond.LTE, Gt: cond.GT, Lt: cond.LT},
					},
				},
			})
		}
	}
	return must, nil
}

func matchCondition(key string, v any) (*pb.Condition, error) {
	switch tv := v.(type) {
	case string:
		return keywordMatch(key, tv), nil
	case bool:
		return fieldCondition(key, &pb.Match{MatchValue: &pb.Match_Boolean{Boolean: tv}}), nil
	case int:
		return fieldCondition(key, &pb.Match{MatchValue: &pb.Match_Integer{Integer: int64(tv)}}), nil
	case int64:
		return fieldCondition(key, &pb.Match{MatchValue: &pb.Match_Integer{Integer: tv}}), nil
	case float64:
		// Qdrant has no float equality match; use a degenerate range.
		return &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key:   key,
					Range: &pb.Range{Gte: &tv, Lte: &tv},
				},
			},
		}, nil
	default:
		return nil, fmt.Errorf("filter %s: unsupported equality value type %T", key, v)
	}
}

func fieldCondition(key string, match *pb.Match) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{Key: key, Match: match},
		},
	}
}

func keywordMatch(key, value string) *pb.Condition {
	return fieldCondition(key, &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}})
}

func toQdrantValue(v any) *pb.Value {
	switch tv := v.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
	}
}

func fromQdrantValue(v *pb.Value) any {
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_IntegerValue:
		return kind.IntegerValue
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	case *pb.Value_BoolValue:
		return kind.BoolValue
	default:
		return nil
	}
}
