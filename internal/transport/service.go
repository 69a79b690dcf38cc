package transport

import (
	"google.golang.org/grpc"
)

// Feed service identifiers shared by client and server.
const (
	// ServiceName is the fully-qualified gRPC service name of the feed.
	ServiceName = "alarmfeed.v1.FeedService"
	// ChannelMethod is the full method path of the Channel stream.
	ChannelMethod = "/alarmfeed.v1.FeedService/Channel"
)

// channelStreamDesc describes the Channel stream for client-side NewStream.
var channelStreamDesc = grpc.StreamDesc{
	StreamName:    "Channel",
	ServerStreams: true,
	ClientStreams: true,
}

// ChannelServer is the server-side contract of the feed service: one
// bidirectional stream per subscribed category.
type ChannelServer interface {
	Channel(stream grpc.ServerStream) error
}

// channelHandler adapts the grpc stream handler signature to ChannelServer.
func channelHandler(srv any, stream grpc.ServerStream) error {
	return srv.(ChannelServer).Channel(stream)
}

// ServiceDesc describes the feed service for manual registration with a
// grpc.Server. There are no generated protobuf types: the stream payloads
// are the protocol package's JSON messages via the registered JSON codec.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChannelServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Channel",
			Handler:       channelHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}
