package grpc

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "gophsync.v1.FileSync"

const (
	MethodUploadFile   = "UploadFile"
	MethodDownloadFile = "DownloadFile"
	MethodListFiles    = "ListFiles"
	MethodSyncBatch    = "SyncBatch"
	MethodDeleteFile   = "DeleteFile"
	MethodUserStats    = "UserStats"
	MethodUsage        = "Usage"
	MethodPing         = "Ping"
)

// FullMethod returns the gRPC path of a FileSync method.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// FileSyncServer is the server API of the FileSync service.
type FileSyncServer interface {
	UploadFile(context.Context, *UploadFileRequest) (*UploadFileResponse, error)
	DownloadFile(context.Context, *DownloadFileRequest) (*DownloadFileResponse, error)
	ListFiles(context.Context, *ListFilesRequest) (*ListFilesResponse, error)
	SyncBatch(context.Context, *SyncBatchRequest) (*SyncBatchResponse, error)
	DeleteFile(context.Context, *DeleteFileRequest) (*DeleteFileResponse, error)
	UserStats(context.Context, *UserStatsRequest) (*UserStatsResponse, error)
	Usage(context.Context, *UsageRequest) (*UsageResponse, error)
	Ping(context.Context, *PingRequest) (*PingResponse, error)
}

// unaryMethod builds a method handler that decodes the body as raw JSON,
// runs the interceptor chain, then validates against schema and decodes
// into Req. Authentication therefore happens before validation.
func unaryMethod[Req any, Resp any](name, schema string, call func(FileSyncServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			var raw json.RawMessage
			if err := dec(&raw); err != nil {
				return nil, status.Error(codes.InvalidArgument, "malformed request")
			}

			handler := func(ctx context.Context, req any) (any, error) {
				body, _ := req.(json.RawMessage)
				if err := requestSchemas.validate(schema, body); err != nil {
					return nil, validationStatus(err)
				}
				in := new(Req)
				if len(body) > 0 {
					if err := json.Unmarshal(body, in); err != nil {
						return nil, status.Error(codes.InvalidArgument, "malformed request")
					}
				}
				return call(srv.(FileSyncServer), ctx, in)
			}

			if interceptor == nil {
				return handler(ctx, raw)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, raw, info, handler)
		},
	}
}

// FileSyncServiceDesc describes the FileSync service for grpc.Server.
var FileSyncServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FileSyncServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodUploadFile, schemaUploadFile, FileSyncServer.UploadFile),
		unaryMethod(MethodDownloadFile, schemaFilename, FileSyncServer.DownloadFile),
		unaryMethod(MethodListFiles, "", FileSyncServer.ListFiles),
		unaryMethod(MethodSyncBatch, schemaSyncBatch, FileSyncServer.SyncBatch),
		unaryMethod(MethodDeleteFile, schemaFilename, FileSyncServer.DeleteFile),
		unaryMethod(MethodUserStats, "", FileSyncServer.UserStats),
		unaryMethod(MethodUsage, "", FileSyncServer.Usage),
		unaryMethod(MethodPing, "", FileSyncServer.Ping),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gophsync/v1/filesync",
}

func RegisterFileSyncServer(s grpc.ServiceRegistrar, srv FileSyncServer) {
	s.RegisterService(&FileSyncServiceDesc, srv)
}
