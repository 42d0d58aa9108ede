// Package scenario holds the catalogue of lock-contention properties the
// harness can demonstrate, each as a named, runnable scenario.
//
// A scenario drives workers through a [driver.Manager] and returns an error
// describing the first expectation that did not hold. [Runner] executes a
// selection of scenarios against one manager, cleaning up between them, and
// collects [Result] values that can be exported with [WriteReport].
package scenario
