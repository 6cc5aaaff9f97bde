package client

import (
	"fmt"

	gs "github.com/dmitrijs2005/gophsync/internal/server/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Dial connects to the FileSync service at addr as the device owning
// accessToken. The caller closes the returned connection.
func Dial(addr, accessToken string) (*gs.Client, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return gs.NewClient(conn, accessToken), conn, nil
}
