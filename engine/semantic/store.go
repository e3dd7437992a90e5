// Package semantic serves the product catalog from a Qdrant collection.
// Products are stored as points whose payload carries the catalog fields;
// queries are keyword payload filters run through Scroll, so no embedding
// model is needed to answer fitment lookups.
package semantic

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/WessleyAI/wessley-fitment/engine/catalog"
	"github.com/WessleyAI/wessley-fitment/engine/domain"
	"github.com/WessleyAI/wessley-fitment/engine/normalize"
)

// PointsAPI is the subset of pb.PointsClient the store uses.
type PointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
}

// CollectionsAPI is the subset of pb.CollectionsClient the store uses.
type CollectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// pageSize bounds each Scroll round trip.
const pageSize = 256

// CatalogStore is the sole owner of all Qdrant operations.
type CatalogStore struct {
	conn        *grpc.ClientConn
	points      PointsAPI
	collections CollectionsAPI
	collection  string
}

// Compile-time interface check.
var _ catalog.Source = (*CatalogStore)(nil)

// New creates a CatalogStore connected to Qdrant at the given gRPC address.
func New(addr, collection string) (*CatalogStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &CatalogStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// NewWithClients creates a CatalogStore over existing clients.
func NewWithClients(points PointsAPI, collections CollectionsAPI, collection string) *CatalogStore {
	return &CatalogStore{points: points, collections: collections, collection: collection}
}

// Close closes the underlying gRPC connection.
func (s *CatalogStore) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *CatalogStore) Name() string { return "qdrant:" + s.collection }

// EnsureCollection creates the collection if it doesn't exist.
func (s *CatalogStore) EnsureCollection(ctx context.Context) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: 1, Distance: pb.Distance_Dot},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", s.collection, err)
	}
	return nil
}

// DeleteCollection deletes the collection.
func (s *CatalogStore) DeleteCollection(ctx context.Context) error {
	_, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: s.collection})
	if err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", s.collection, err)
	}
	return nil
}

// Upsert writes products as points. Query results follow the order of the
// batch; products without identity are rejected before anything is sent.
func (s *CatalogStore) Upsert(ctx context.Context, products []domain.Product) (int, error) {
	if len(products) == 0 {
		return 0, nil
	}
	points := make([]*pb.PointStruct, len(products))
	for i, p := range products {
		if err := domain.ValidateProduct(p); err != nil {
			return 0, fmt.Errorf("semantic: upsert %q: %w", p.Name, err)
		}
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(p)}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: []float32{1}}},
			},
			Payload: productPayload(p, i),
		}
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return 0, fmt.Errorf("semantic: upsert %d points: %w", len(points), err)
	}
	return len(points), nil
}

// DeleteByCategory removes every product in a catalog category. Used before
// re-importing one category.
func (s *CatalogStore) DeleteByCategory(ctx context.Context, category string) error {
	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{Must: []*pb.Condition{fieldMatch(keyCategoryKey, categoryKey(category))}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete category %s: %w", category, err)
	}
	return nil
}

func (s *CatalogStore) QueryByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	return s.scroll(ctx, fieldMatch(keyCategoryKey, categoryKey(category)))
}

func (s *CatalogStore) QueryBySize(ctx context.Context, category, size string) ([]domain.Product, error) {
	norm := normalize.Size(size)
	if norm == "" {
		return nil, nil
	}
	return s.scroll(ctx, fieldMatch(keyCategoryKey, categoryKey(category)), fieldMatch(keySizeNorm, norm))
}

func (s *CatalogStore) QueryByCode(ctx context.Context, category, code string) ([]domain.Product, error) {
	norm := normalize.Code(code)
	if norm == "" {
		return nil, nil
	}
	return s.scroll(ctx, fieldMatch(keyCategoryKey, categoryKey(category)), fieldMatch(keyCodeNorm, norm))
}

// scroll pages through every point matching all conditions and returns the
// products in upsert order.
func (s *CatalogStore) scroll(ctx context.Context, must ...*pb.Condition) ([]domain.Product, error) {
	type ranked struct {
		p   domain.Product
		seq int
	}
	var (
		hits   []ranked
		offset *pb.PointId
		limit  = uint32(pageSize)
	)
	for {
		resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: s.collection,
			Filter:         &pb.Filter{Must: must},
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		})
		if err != nil {
			return nil, &domain.SourceError{Source: s.Name(), Op: "scroll", Err: err}
		}
		for _, pt := range resp.GetResult() {
			p, seq := productFromPayload(pt.GetPayload())
			p.Source = s.Name()
			hits = append(hits, ranked{p, seq})
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}

	slices.SortStableFunc(hits, func(a, b ranked) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]domain.Product, len(hits))
	for i, h := range hits {
		out[i] = h.p
	}
	return out, nil
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
