// Package types defines the entities, store interfaces, pure cycle and growth
// calculators, and standard errors for the cycle accounting engine.
//
// A CyclePlan partitions time into repeating periods of N calendar months.
// CalculateCurrent and CalculateSpecific translate a plan into concrete
// CycleInfo ranges; GrowthPct compares two snapshots. Storage and the
// closure and backfill workflows live outside this package and depend on it.
package types
