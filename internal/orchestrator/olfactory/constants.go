// Package olfactory drives the semantic-to-chemical stage: one scent profile per interval.
package olfactory

import "time"

const (
	DefaultRetryBudget    = 3
	DefaultRequestTimeout = 2 * time.Minute
)
