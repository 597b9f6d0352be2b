// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package comms is the gRPC channel to a fleet-side coordinator, used
// by the Remote trigger variant to receive pushed releases and to
// carry the readiness/status notification when the agent runs under
// fleet coordination. Grounded on the reference agent's comms.Client:
// same dial/retry/interceptor wiring, repurposed from package/firmware
// update orchestration to the Cincinnati-less remote-trigger channel.
package comms

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	grpc_logrus "github.com/grpc-ecosystem/go-grpc-middleware/logging/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/coreos/zincati/internal/logger"
	"github.com/coreos/zincati/internal/release"
	pb "github.com/open-edge-platform/infra-managers/maintenance/pkg/api/maintmgr/v1"
)

const retryInterval = 10 * time.Second
const dialPollInterval = 500 * time.Millisecond

var log = logger.Logger()

// Client holds a gRPC connection to the fleet coordinator.
type Client struct {
	ServiceAddr   string
	Dialer        grpc.DialOption
	Transport     grpc.DialOption
	GrpcConn      *grpc.ClientConn
	MaintClient   pb.MaintmgrServiceClient
	RetryInterval time.Duration
}

// WithNetworkDialer pins the gRPC dial to a plain TCP dialer, matching
// the reference client's test seam for talking to a local mock server.
func WithNetworkDialer(serviceAddr string) func(*Client) {
	return func(c *Client) {
		c.Dialer = grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return net.Dial("tcp", serviceAddr)
		})
	}
}

// NewClient builds an unconnected Client.
func NewClient(serviceAddr string, tlsConfig *tls.Config) *Client {
	c := &Client{
		ServiceAddr:   serviceAddr,
		RetryInterval: retryInterval,
		Transport:     grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)),
	}
	WithNetworkDialer(serviceAddr)(c)
	return c
}

// Connect dials the fleet coordinator once, blocking until the
// connection is up or ctx ends.
func (c *Client) Connect(ctx context.Context) (err error) {
	c.GrpcConn, err = grpc.DialContext(ctx, c.ServiceAddr, c.Transport, c.Dialer, //nolint:staticcheck
		grpc.WithBlock(), //nolint:staticcheck
		grpc.WithUnaryInterceptor(grpc_logrus.UnaryClientInterceptor(log)),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()))
	if err != nil {
		return fmt.Errorf("connection to %s failed: %w", c.ServiceAddr, err)
	}
	c.MaintClient = pb.NewMaintmgrServiceClient(c.GrpcConn)
	return nil
}

// ConnectWithRetry dials the fleet coordinator, retrying at
// RetryInterval until ctx is cancelled. Returns nil if ctx is
// cancelled before a connection succeeds.
func ConnectWithRetry(ctx context.Context, serviceAddr string, tlsConfig *tls.Config) *Client {
	client := NewClient(serviceAddr, tlsConfig)

	ticker := time.NewTicker(dialPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("connecting to fleet coordinator cancelled")
			return nil
		case <-ticker.C:
			if err := client.Connect(ctx); err != nil {
				log.Infof("can't connect to fleet coordinator: %v", err)
				time.Sleep(client.RetryInterval)
				continue
			}
			return client
		}
	}
}

// StatusReport is the local state reported on each readiness push.
type StatusReport struct {
	Discriminant string
	Version      string
	Detail       string
}

// ReportStatus pushes the agent's current FSM position to the fleet
// coordinator and returns any release it pushes back, if one is
// pending. A nil returned release means "no update waiting".
func (c *Client) ReportStatus(ctx context.Context, nodeGUID string, report StatusReport) (*release.Release, error) {
	status := &pb.UpdateStatus{
		StatusType:     statusTypeOf(report.Discriminant),
		StatusDetail:   report.Detail,
		ProfileVersion: report.Version,
	}
	request := &pb.PlatformUpdateStatusRequest{HostGuid: nodeGUID, UpdateStatus: status}

	resp, err := c.MaintClient.PlatformUpdateStatus(ctx, request)
	if err != nil {
		log.Errorf("status report to fleet coordinator failed: %v", err)
		return nil, err
	}

	src := resp.GetOsProfileUpdateSource()
	if src == nil || src.GetOsImageId() == "" {
		return nil, nil
	}
	rel := release.New(src.GetProfileVersion(), src.GetOsImageId(), release.SchemeOCI, nil)
	return &rel, nil
}

func statusTypeOf(discriminant string) pb.UpdateStatus_StatusType {
	switch discriminant {
	case "UpdateAvailable", "UpdateStaged":
		return pb.UpdateStatus_STATUS_TYPE_STARTED
	case "UpdateFinalized":
		return pb.UpdateStatus_STATUS_TYPE_UPDATED
	default:
		return pb.UpdateStatus_STATUS_TYPE_UP_TO_DATE
	}
}
