package vector

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// PointsAPI is the subset of the Qdrant points service the store uses.
type PointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// CollectionsAPI is the subset of the Qdrant collections service the store
// uses.
type CollectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Store is the embedding index client. Read paths are safe for concurrent
// use by any number of in-flight requests.
type Store struct {
	conn        *grpc.ClientConn
	points      PointsAPI
	collections CollectionsAPI
}

// New creates a Store connected to Qdrant at the given gRPC address.
func New(addr string) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("vector: dial qdrant %s: %w", addr, err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
	}, nil
}

// NewWithClients creates a Store from pre-built clients. Intended for tests.
func NewWithClients(points PointsAPI, collections CollectionsAPI) *Store {
	return &Store{points: points, collections: collections}
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// EnsureCollection creates the collection with cosine distance if it does
// not exist.
func (s *Store) EnsureCollection(ctx context.Context, collection string, dims int) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return retrievalErr("list collections for", collection, err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == collection {
			return nil
		}
	}
	return s.create(ctx, collection, dims)
}

// RecreateCollection drops and recreates the collection. Used by cmd/indexer
// when loading a freshly trained embedding set.
func (s *Store) RecreateCollection(ctx context.Context, collection string, dims int) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return retrievalErr("list collections for", collection, err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == collection {
			if _, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: collection}); err != nil {
				return retrievalErr("delete collection", collection, err)
			}
			break
		}
	}
	return s.create(ctx, collection, dims)
}

func (s *Store) create(ctx context.Context, collection string, dims int) error {
	_, err := s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	return retrievalErr("create collection", collection, err)
}

// Upsert stores documents into the collection, keyed by entity id.
func (s *Store) Upsert(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(docs))
	for i, d := range docs {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Num{Num: uint64(d.ID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: d.Embedding},
				},
			},
			Payload: map[string]*pb.Value{
				"name": {Kind: &pb.Value_StringValue{StringValue: d.Name}},
				"url":  {Kind: &pb.Value_StringValue{StringValue: d.URL}},
			},
		}
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         points,
	})
	return retrievalErr(fmt.Sprintf("upsert %d points into", len(docs)), collection, err)
}

// Search performs a k-NN cosine similarity query and returns hits ordered by
// descending score. k bounds the candidate count; the client imposes no
// other meaning on it.
func (s *Store) Search(ctx context.Context, collection string, embedding []float32, k int) ([]Hit, error) {
	if k < 1 {
		return nil, retrievalErr("search", collection, fmt.Errorf("k must be >= 1, got %d", k))
	}

	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: collection,
		Vector:         embedding,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, retrievalErr("search", collection, err)
	}

	hits := make([]Hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		hits[i] = Hit{
			ID:    int64(r.GetId().GetNum()),
			Name:  r.GetPayload()["name"].GetStringValue(),
			URL:   r.GetPayload()["url"].GetStringValue(),
			Score: r.GetScore(),
		}
	}
	return hits, nil
}
