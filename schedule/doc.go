// Package schedule implements the time-slot scheduling optimizer: candidate
// enumeration over the next two weeks of weekdays, per-participant overlap
// analysis, weighted scoring and ranked selection. The optimizer is pure
// computation over declared availability; collecting that availability is
// the participant worker's job.
package schedule
