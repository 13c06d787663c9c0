// Package auth guards the server's inbound surfaces with a shared API key.
//
// APIKeyInterceptor and APIKeyStreamInterceptor protect the gRPC listener;
// APIKeyMiddleware protects HTTP write endpoints such as POST /ingest.
//
// When mode != "apikey" or key == "", every request passes through (local
// development with auth disabled). A missing or incorrect key is rejected
// with codes.Unauthenticated on gRPC and 401 on HTTP.
package auth
