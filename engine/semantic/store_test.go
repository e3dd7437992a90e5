package semantic

import (
	"context"
	"errors"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"

	"github.com/WessleyAI/wessley-fitment/engine/domain"
)

// --- Mocks ---

type mockPoints struct {
	upserted  []*pb.PointStruct
	upsertErr error
	deleted   *pb.DeletePoints
	deleteErr error
	pages     []*pb.ScrollResponse
	scrolls   []*pb.ScrollPoints
	scrollErr error
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	m.upserted = append(m.upserted, in.GetPoints()...)
	return &pb.PointsOperationResponse{}, nil
}

func (m *mockPoints) Delete(_ context.Context, in *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.deleted = in
	return &pb.PointsOperationResponse{}, m.deleteErr
}

func (m *mockPoints) Scroll(_ context.Context, in *pb.ScrollPoints, _ ...grpc.CallOption) (*pb.ScrollResponse, error) {
	if m.scrollErr != nil {
		return nil, m.scrollErr
	}
	m.scrolls = append(m.scrolls, in)
	if len(m.pages) == 0 {
		return &pb.ScrollResponse{}, nil
	}
	page := m.pages[0]
	m.pages = m.pages[1:]
	return page, nil
}

type mockCollections struct {
	listResp  *pb.ListCollectionsResponse
	listErr   error
	created   *pb.CreateCollection
	createErr error
	deleteErr error
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	return m.listResp, m.listErr
}

func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.created = in
	return &pb.CollectionOperationResponse{Result: m.createErr == nil}, m.createErr
}

func (m *mockCollections) Delete(_ context.Context, _ *pb.DeleteCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	return &pb.CollectionOperationResponse{Result: m.deleteErr == nil}, m.deleteErr
}

func point(p domain.Product, seq int) *pb.RetrievedPoint {
	return &pb.RetrievedPoint{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(p)}},
		Payload: productPayload(p, seq),
	}
}

func conditions(req *pb.ScrollPoints) map[string]string {
	out := map[string]string{}
	for _, c := range req.GetFilter().GetMust() {
		f := c.GetField()
		out[f.GetKey()] = f.GetMatch().GetKeyword()
	}
	return out
}

// --- Tests ---

func TestNewWithClients(t *testing.T) {
	s := NewWithClients(&mockPoints{}, &mockCollections{}, "catalog")
	if s.Name() != "qdrant:catalog" {
		t.Fatalf("Name = %q", s.Name())
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestEnsureCollection_AlreadyExists(t *testing.T) {
	cols := &mockCollections{
		listResp: &pb.ListCollectionsResponse{Collections: []*pb.CollectionDescription{{Name: "catalog"}}},
	}
	s := NewWithClients(&mockPoints{}, cols, "catalog")
	if err := s.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cols.created != nil {
		t.Fatal("existing collection must not be recreated")
	}
}

func TestEnsureCollection_Creates(t *testing.T) {
	cols := &mockCollections{
		listResp: &pb.ListCollectionsResponse{Collections: []*pb.CollectionDescription{{Name: "other"}}},
	}
	s := NewWithClients(&mockPoints{}, cols, "catalog")
	if err := s.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cols.created.GetCollectionName() != "catalog" {
		t.Fatalf("created %q", cols.created.GetCollectionName())
	}
	if size := cols.created.GetVectorsConfig().GetParams().GetSize(); size != 1 {
		t.Fatalf("vector size = %d", size)
	}
}

func TestEnsureCollection_Errors(t *testing.T) {
	s := NewWithClients(&mockPoints{}, &mockCollections{listErr: errors.New("rpc fail")}, "catalog")
	if err := s.EnsureCollection(context.Background()); err == nil {
		t.Fatal("expected list error")
	}
	s = NewWithClients(&mockPoints{}, &mockCollections{
		listResp:  &pb.ListCollectionsResponse{},
		createErr: errors.New("create fail"),
	}, "catalog")
	if err := s.EnsureCollection(context.Background()); err == nil {
		t.Fatal("expected create error")
	}
}

func TestDeleteCollection(t *testing.T) {
	s := NewWithClients(&mockPoints{}, &mockCollections{}, "catalog")
	if err := s.DeleteCollection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s = NewWithClients(&mockPoints{}, &mockCollections{deleteErr: errors.New("fail")}, "catalog")
	if err := s.DeleteCollection(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestUpsert(t *testing.T) {
	pts := &mockPoints{}
	s := NewWithClients(pts, &mockCollections{}, "catalog")
	ctx := context.Background()

	if n, err := s.Upsert(ctx, nil); err != nil || n != 0 {
		t.Fatalf("empty upsert = %d, %v", n, err)
	}

	n, err := s.Upsert(ctx, []domain.Product{
		{ID: "sp-652", Name: "Pioneer TS-A652F", Category: "Speaker", SpeakerSize: `6 1/2"`, Price: decimal.RequireFromString("89.99")},
		{SKU: "95-7810", Name: "Dash Kit", Category: "dash_kit", MetraCode: "95-7810"},
	})
	if err != nil || n != 2 {
		t.Fatalf("Upsert = %d, %v", n, err)
	}
	first := pts.upserted[0].GetPayload()
	if got := first[keySizeNorm].GetStringValue(); got != "6.5" {
		t.Fatalf("size_norm = %q", got)
	}
	if got := first[keyCategoryKey].GetStringValue(); got != "speaker" {
		t.Fatalf("category_key = %q", got)
	}
	if pts.upserted[1].GetId().GetUuid() == "" {
		t.Fatal("expected uuid point id")
	}
	if got := pts.upserted[1].GetPayload()[keySeq].GetIntegerValue(); got != 1 {
		t.Fatalf("seq = %d", got)
	}

	if _, err := s.Upsert(ctx, []domain.Product{{Category: "speaker"}}); !errors.Is(err, domain.ErrUnidentifiedProduct) {
		t.Fatalf("expected ErrUnidentifiedProduct, got %v", err)
	}

	pts.upsertErr = errors.New("fail")
	if _, err := s.Upsert(ctx, []domain.Product{{ID: "x"}}); err == nil {
		t.Fatal("expected error")
	}
}

func TestPointIDStable(t *testing.T) {
	a := pointID(domain.Product{ID: "sp-652"})
	b := pointID(domain.Product{ID: "sp-652", Name: "renamed"})
	if a != b {
		t.Fatalf("point id should follow product identity: %s vs %s", a, b)
	}
}

func TestQueryBySize_PagesAndOrders(t *testing.T) {
	a := domain.Product{ID: "a", Name: "A", Category: "speaker", SpeakerSize: "6.5", Price: decimal.NewFromInt(50)}
	b := domain.Product{ID: "b", Name: "B", Category: "speaker", SpeakerSize: "6.5"}
	c := domain.Product{ID: "c", Name: "C", Category: "speaker", SpeakerSize: "6.5"}
	next := &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(c)}}
	pts := &mockPoints{pages: []*pb.ScrollResponse{
		{Result: []*pb.RetrievedPoint{point(c, 2), point(a, 0)}, NextPageOffset: next},
		{Result: []*pb.RetrievedPoint{point(b, 1)}},
	}}
	s := NewWithClients(pts, &mockCollections{}, "catalog")

	got, err := s.QueryBySize(context.Background(), "Speaker", `6 1/2"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 || got[0].Name != "A" || got[1].Name != "B" || got[2].Name != "C" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if !got[0].Price.Equal(decimal.NewFromInt(50)) || got[0].Source != "qdrant:catalog" {
		t.Fatalf("payload not decoded: %+v", got[0])
	}
	if len(pts.scrolls) != 2 || pts.scrolls[1].GetOffset() == nil {
		t.Fatalf("expected two scroll pages, got %d", len(pts.scrolls))
	}
	conds := conditions(pts.scrolls[0])
	if conds[keyCategoryKey] != "speaker" || conds[keySizeNorm] != "6.5" {
		t.Fatalf("unexpected filter %v", conds)
	}
}

func TestQueryByCode(t *testing.T) {
	pts := &mockPoints{}
	s := NewWithClients(pts, &mockCollections{}, "catalog")

	got, err := s.QueryByCode(context.Background(), "dash_kit", "95-7810 ")
	if err != nil || len(got) != 0 {
		t.Fatalf("QueryByCode = %v, %v", got, err)
	}
	if conds := conditions(pts.scrolls[0]); conds[keyCodeNorm] != "95-7810" {
		t.Fatalf("unexpected filter %v", conds)
	}

	if got, err := s.QueryByCode(context.Background(), "dash_kit", " "); err != nil || got != nil {
		t.Fatalf("blank code should short-circuit, got %v, %v", got, err)
	}
	if len(pts.scrolls) != 1 {
		t.Fatal("blank code must not reach qdrant")
	}
}

func TestQueryByCategory_Error(t *testing.T) {
	s := NewWithClients(&mockPoints{scrollErr: errors.New("unavailable")}, &mockCollections{}, "catalog")
	_, err := s.QueryByCategory(context.Background(), "speaker")
	if !errors.Is(err, domain.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestDeleteByCategory(t *testing.T) {
	pts := &mockPoints{}
	s := NewWithClients(pts, &mockCollections{}, "catalog")
	if err := s.DeleteByCategory(context.Background(), "Dash_Kit"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cond := pts.deleted.GetPoints().GetFilter().GetMust()[0].GetField()
	if cond.GetKey() != keyCategoryKey || cond.GetMatch().GetKeyword() != "dash_kit" {
		t.Fatalf("unexpected delete filter %v", cond)
	}

	pts.deleteErr = errors.New("fail")
	if err := s.DeleteByCategory(context.Background(), "dash_kit"); err == nil {
		t.Fatal("expected error")
	}
}

func TestFieldMatch(t *testing.T) {
	fc := fieldMatch("key", "value").GetField()
	if fc.Key != "key" || fc.Match.GetKeyword() != "value" {
		t.Fatalf("unexpected condition %v", fc)
	}
}

func TestProductFromPayload_SeqKinds(t *testing.T) {
	payload := productPayload(domain.Product{ID: "x"}, 0)
	payload[keySeq] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: 7}}
	if _, seq := productFromPayload(payload); seq != 7 {
		t.Fatalf("seq = %d", seq)
	}
	payload[keySeq] = strValue("9")
	if _, seq := productFromPayload(payload); seq != 9 {
		t.Fatalf("seq = %d", seq)
	}
	delete(payload, keySeq)
	if p, seq := productFromPayload(payload); seq != 0 || p.ID != "x" {
		t.Fatalf("got %+v, %d", p, seq)
	}
}
