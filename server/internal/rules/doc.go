// Package rules implements the fixed clinical threshold checks applied to
// every vitals reading. The rule table is static and evaluated in order; there
// is no state and no learning.
package rules
