// Package arp is the frame core of a real-time deferred/forward hybrid renderer
// built on the gogpu WebGPU HAL.
//
// # Overview
//
// arp does two things per camera per frame:
//
//   - keeps a rolling history of GPU render targets so temporal effects
//     (TAA, motion-vector reprojection) can read what earlier frames wrote
//   - drives a fixed sequence of render passes with named extension points
//     where external code can inject work without restructuring the pipeline
//
// # Architecture
//
// The module is organized into:
//
//   - target: render target descriptors, size policies and physical allocations
//   - history: the temporal resource ring (register, begin frame, get, release)
//   - lighting: the dominant directional light constant block and its uploader
//   - pipeline: hooks, collaborators, frame context and the camera renderer
//
// Culling, shading, shadow maps and post-processing kernels are collaborators:
// the pipeline calls them at fixed points and never looks inside.
//
// # Quick Start
//
//	p, err := pipeline.New(device, queue, pipeline.Collaborators{
//	    Visibility: culler,
//	    Shading:    shading,
//	    Blitter:    blitter,
//	    Lights:     lights,
//	}, pipeline.DefaultSettings())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Dispose()
//
//	p.Hooks().On(pipeline.BeforePostProcess, func() { /* ... */ })
//
//	for running {
//	    if err := p.Render(mainCamera); err != nil {
//	        log.Printf("frame failed: %v", err)
//	    }
//	}
//
// # Threading
//
// A frame runs on the calling goroutine; every stage completes before the next
// begins. GPU execution is pipelined by the queue: the pipeline submits after
// each stage and only waits on fences of frames older than the configured
// number of frames in flight.
package arp

// Version information
const (
	// Version is the current version of the module
	Version = "0.3.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 3

	// VersionPatch is the patch version
	VersionPatch = 0
)
