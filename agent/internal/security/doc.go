// Package security inspects the certificates on the agent's link to
// vitalstream-server: the server's TLS leaf when the server URL is https,
// and the agent's own client certificate in mtls mode. The agent logs the
// result at startup so an expiring certificate shows up before readings
// start failing.
package security
