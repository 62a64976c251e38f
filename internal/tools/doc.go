// Package tools builds the callable action catalog the gateway advertises.
//
// Integration metadata files describe external APIs and their actions; each
// action becomes a tool whose handler proxies the call upstream. A generic
// http_request tool can be enabled by feature flag. Aggregation happens once
// at startup; the resulting Catalog is immutable and the session core treats
// it as opaque input.
package tools
