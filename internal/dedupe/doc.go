// Package dedupe tracks recently dispatched job ids so a job that reaches the
// node through both the poll path and the push path is run and reported once.
package dedupe
