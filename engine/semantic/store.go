package semantic

import (
	"context"
	"fmt"
	"net/http"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/fuelme/vendorprobe/engine/domain"
)

const grpcProvider = "qdrant-grpc"

// PointsAPI is the subset of pb.PointsClient the store uses.
type PointsAPI interface {
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// CollectionsAPI is the subset of pb.CollectionsClient the store uses.
type CollectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
}

// VectorStore searches a Qdrant collection over gRPC (port 6334).
type VectorStore struct {
	conn        *grpc.ClientConn
	points      PointsAPI
	collections CollectionsAPI
	collection  string
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, collection string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// NewWithClients builds a VectorStore around existing clients.
func NewWithClients(points PointsAPI, collections CollectionsAPI, collection string) *VectorStore {
	return &VectorStore{points: points, collections: collections, collection: collection}
}

// Close closes the underlying gRPC connection, if any.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// CollectionExists reports whether the collection is listed by the server.
func (v *VectorStore) CollectionExists(ctx context.Context) (bool, error) {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, grpcError("list collections", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return true, nil
		}
	}
	return false, nil
}

// Search performs k-NN similarity search. Vectors are narrowed to float32,
// the only element type the gRPC API accepts.
func (v *VectorStore) Search(ctx context.Context, vector []float64, limit int) ([]Hit, error) {
	vec := make([]float32, len(vector))
	for i, x := range vector {
		vec[i] = float32(x)
	}

	resp, err := v.points.Search(ctx, &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         vec,
		Limit:          uint64(effectiveLimit(limit)),
	})
	if err != nil {
		return nil, grpcError("search "+v.collection, err)
	}

	hits := make([]Hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		id := r.GetId()
		if _, ok := id.GetPointIdOptions().(*pb.PointId_Num); !ok {
			return nil, fmt.Errorf("semantic: point %q has a non-numeric id", id.GetUuid())
		}
		version := int64(r.GetVersion())
		hits[i] = Hit{
			ID:      int64(id.GetNum()),
			Score:   float64(r.GetScore()),
			Version: &version,
		}
	}
	return hits, nil
}

// grpcError turns a server status into a ProviderError so callers see the
// same error kind regardless of transport.
func grpcError(op string, err error) error {
	st, ok := status.FromError(err)
	if !ok || st.Code() == codes.Unknown {
		return fmt.Errorf("semantic: %s: %w", op, err)
	}
	return fmt.Errorf("semantic: %s: %w", op, domain.NewProviderError(grpcProvider, httpStatusFromCode(st.Code()), st.Message()))
}

func httpStatusFromCode(c codes.Code) int {
	switch c {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Canceled:
		return 499
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
