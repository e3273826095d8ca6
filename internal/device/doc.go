// Package device acquires page images from scanning hardware.
//
// A Backend is one acquisition mechanism (the scanimage CLI, the HPLIP
// tools, or an inbox directory of pre-scanned files). Backends are chosen
// once by Discover; code above this package only sees the Backend contract
// and the Handle that enforces its lifecycle:
//
//	Idle -> Probed -> Open -> Scanning -> (Cancelling) -> Closed
//
// Handle.Release is the single teardown path. It cancels an in-flight job
// and closes the backend exactly once, even when the caller's context has
// already been cancelled by an interrupt.
package device
