// Package geo places browser sessions at random points around a base
// coordinate so consecutive sessions do not report the same location.
package geo
