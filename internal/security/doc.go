// Package security derives a configuration posture report for operators.
package security
