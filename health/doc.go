// Package health agrega o estado dos upstreams e do Redis compartilhado num
// único status (HEALTHY, PARTIAL, DEGRADED ou CRITICAL).
package health
