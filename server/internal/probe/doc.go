// Package probe serves the standard grpc.health.v1 health service so
// orchestrators and load balancers can check vitalstream-server over gRPC.
//
// NewServer builds a *grpc.Server guarded by the API-key interceptors with
// the health service registered. Monitor keeps the overall status in step
// with the record store: SERVING while Count succeeds, NOT_SERVING when it
// fails. On shutdown the status is set to NOT_SERVING before the server
// stops.
package probe
