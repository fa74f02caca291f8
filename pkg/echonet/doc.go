// Package echonet encodes and decodes the ECHONET Lite frames exchanged with a
// low-voltage smart electric energy meter over the B-route.
package echonet
