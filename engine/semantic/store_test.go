package semantic

import (
	"context"
	"errors"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fuelme/vendorprobe/engine/domain"
)

// --- Mocks ---

type mockPoints struct {
	searchResp *pb.SearchResponse
	searchErr  error
	lastReq    *pb.SearchPoints
}

func (m *mockPoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	m.lastReq = in
	return m.searchResp, m.searchErr
}

type mockCollections struct {
	listResp *pb.ListCollectionsResponse
	listErr  error
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	return m.listResp, m.listErr
}

func numID(n uint64) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: n}}
}

// --- Tests ---

func TestNewWithClients_Close(t *testing.T) {
	vs := NewWithClients(&mockPoints{}, &mockCollections{}, "test")
	if err := vs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestSearch_Success(t *testing.T) {
	pts := &mockPoints{
		searchResp: &pb.SearchResponse{
			Result: []*pb.ScoredPoint{
				{Id: numID(7), Score: 0.92, Version: 4},
				{Id: numID(3), Score: 0.5},
			},
		},
	}
	vs := NewWithClients(pts, &mockCollections{}, "fuel-vendors")
	hits, err := vs.Search(context.Background(), []float64{0.25, 0.5}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pts.lastReq.GetCollectionName() != "fuel-vendors" || pts.lastReq.GetLimit() != 5 {
		t.Fatalf("wrong request: %+v", pts.lastReq)
	}
	if v := pts.lastReq.GetVector(); len(v) != 2 || v[1] != 0.5 {
		t.Fatalf("wrong vector: %v", v)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2, got %d", len(hits))
	}
	if hits[0].ID != 7 || *hits[0].Version != 4 {
		t.Errorf("wrong first hit %+v", hits[0])
	}
	if hits[1].ID != 3 || hits[1].Score != 0.5 {
		t.Errorf("wrong second hit %+v", hits[1])
	}
}

func TestSearch_DefaultLimit(t *testing.T) {
	pts := &mockPoints{searchResp: &pb.SearchResponse{}}
	vs := NewWithClients(pts, &mockCollections{}, "test")
	hits, err := vs.Search(context.Background(), []float64{1}, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pts.lastReq.GetLimit() != DefaultLimit {
		t.Fatalf("expected limit %d, got %d", DefaultLimit, pts.lastReq.GetLimit())
	}
	if len(hits) != 0 {
		t.Fatalf("expected 0, got %d", len(hits))
	}
}

func TestSearch_UUIDRejected(t *testing.T) {
	pts := &mockPoints{
		searchResp: &pb.SearchResponse{
			Result: []*pb.ScoredPoint{{Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "p1"}}, Score: 0.9}},
		},
	}
	vs := NewWithClients(pts, &mockCollections{}, "test")
	if _, err := vs.Search(context.Background(), []float64{1}, 5); err == nil {
		t.Fatal("expected error")
	}
}

func TestSearch_StatusError(t *testing.T) {
	pts := &mockPoints{searchErr: status.Error(codes.NotFound, "collection missing")}
	vs := NewWithClients(pts, &mockCollections{}, "test")
	_, err := vs.Search(context.Background(), []float64{1}, 5)
	var pe *domain.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.StatusCode != 404 || pe.Body != "collection missing" {
		t.Fatalf("unexpected %+v", pe)
	}
}

func TestSearch_PlainError(t *testing.T) {
	pts := &mockPoints{searchErr: errors.New("fail")}
	vs := NewWithClients(pts, &mockCollections{}, "test")
	_, err := vs.Search(context.Background(), []float64{1}, 5)
	if err == nil {
		t.Fatal("expected error")
	}
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		t.Fatal("plain errors should not become ProviderError")
	}
}

func TestCollectionExists(t *testing.T) {
	cols := &mockCollections{
		listResp: &pb.ListCollectionsResponse{
			Collections: []*pb.CollectionDescription{{Name: "other"}, {Name: "fuel-vendors"}},
		},
	}
	ok, err := NewWithClients(&mockPoints{}, cols, "fuel-vendors").CollectionExists(context.Background())
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	ok, err = NewWithClients(&mockPoints{}, cols, "missing").CollectionExists(context.Background())
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestCollectionExists_Error(t *testing.T) {
	cols := &mockCollections{listErr: status.Error(codes.Unavailable, "down")}
	_, err := NewWithClients(&mockPoints{}, cols, "x").CollectionExists(context.Background())
	if !domain.IsProviderStatus(err, 503) {
		t.Fatalf("expected 503, got %v", err)
	}
}

func TestHTTPStatusFromCode(t *testing.T) {
	cases := map[codes.Code]int{
		codes.InvalidArgument:  400,
		codes.Unauthenticated:  401,
		codes.PermissionDenied: 403,
		codes.NotFound:         404,
		codes.Unavailable:      503,
		codes.DeadlineExceeded: 504,
		codes.Internal:         500,
	}
	for c, want := range cases {
		if got := httpStatusFromCode(c); got != want {
			t.Errorf("%s: expected %d, got %d", c, want, got)
		}
	}
}

func TestNew_Dial(t *testing.T) {
	vs, err := New("localhost:6334", "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := vs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
