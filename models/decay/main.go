// Package main is a WebAssembly model for the bmi host. It decays a tracer
// concentration along a row of cells, each cell with its own rate.
//
// Build it as a WASI reactor and register it by its manifest:
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o decay.wasm .
//	bmi conform decay --models-dir ..
//
// The model exports the bmi_* functions with JSON requests and responses,
// binds rate (input) and concentration (output) on a one-dimensional
// rectilinear grid, and supports checkpoints and fractional steps.
package main

func main() {}
