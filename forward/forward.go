// Package forward ships captured snapshots to an external collector over
// gRPC. The collector's schema is discovered at runtime through server
// reflection, so the agent carries no generated stubs for it.
package forward

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"github.com/jhump/protoreflect/grpcreflect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	rpb "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"

	"github.com/chazu/loupe/wire"
)

// Forwarder sends snapshots to one collector method, resolved once through
// reflection and reused for every send.
type Forwarder struct {
	conn      *grpc.ClientConn
	refClient *grpcreflect.Client
	target    string
	method    string

	mu         sync.Mutex
	methodDesc *desc.MethodDescriptor
}

// Dial connects to the collector at target. method names the receiving RPC
// as "package.Service/Method"; it is resolved lazily on the first send so the
// collector may come up after the agent.
func Dial(target, method string) (*Forwarder, error) {
	if _, _, err := splitMethod(method); err != nil {
		return nil, err
	}

	conn, err := grpc.Dial(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	refClient := grpcreflect.NewClientV1Alpha(context.Background(), rpb.NewServerReflectionClient(conn))

	return &Forwarder{
		conn:      conn,
		refClient: refClient,
		target:    target,
		method:    method,
	}, nil
}

// Close tears down the reflection client and the connection.
func (f *Forwarder) Close() error {
	f.refClient.Reset()
	return f.conn.Close()
}

// Forward sends one snapshot to the collector.
func (f *Forwarder) Forward(ctx context.Context, snap *wire.Snapshot) error {
	methodDesc, err := f.resolveMethod()
	if err != nil {
		return err
	}

	req, err := snapshotRequest(methodDesc.GetInputType(), snap)
	if err != nil {
		return err
	}
	resp := dynamic.NewMessage(methodDesc.GetOutputType())

	if err := f.conn.Invoke(ctx, "/"+f.method, req, resp); err != nil {
		return fmt.Errorf("forwarding snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// resolveMethod resolves the configured "package.Service/Method" name to its
// descriptor, caching the result.
func (f *Forwarder) resolveMethod() (*desc.MethodDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.methodDesc != nil {
		return f.methodDesc, nil
	}

	serviceName, methodName, err := splitMethod(f.method)
	if err != nil {
		return nil, err
	}
	svcDesc, err := f.refClient.ResolveService(serviceName)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve service %s: %w", serviceName, err)
	}
	methodDesc := svcDesc.FindMethodByName(methodName)
	if methodDesc == nil {
		return nil, fmt.Errorf("service %s has no method %s", serviceName, methodName)
	}
	if methodDesc.IsClientStreaming() || methodDesc.IsServerStreaming() {
		return nil, fmt.Errorf("method %s is streaming, want unary", f.method)
	}

	f.methodDesc = methodDesc
	return methodDesc, nil
}

// splitMethod parses a method name like "package.Service/Method".
func splitMethod(fullMethod string) (service, method string, err error) {
	parts := strings.Split(fullMethod, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid method format: %s (expected 'service/method')", fullMethod)
	}
	return parts[0], parts[1], nil
}

// snapshotRequest fills the collector's request message from a snapshot.
// Recognized fields are set by name; fields the collector doesn't declare
// are skipped, so the agent works against older collector schemas.
func snapshotRequest(msgDesc *desc.MessageDescriptor, snap *wire.Snapshot) (*dynamic.Message, error) {
	data, err := wire.MarshalSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}

	msg := dynamic.NewMessage(msgDesc)
	for name, value := range map[string]interface{}{
		"id":              snap.ID,
		"created_unix_ms": snap.CreatedUnixMs,
		"data":            data,
	} {
		if msgDesc.FindFieldByName(name) == nil {
			continue
		}
		if err := msg.TrySetFieldByName(name, value); err != nil {
			return nil, fmt.Errorf("setting field %s: %w", name, err)
		}
	}
	return msg, nil
}
