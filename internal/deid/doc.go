// Package deid redacts protected health information and credentials from
// note text before it is sent to an external embedding or generation API.
//
// Two detectors run over the same text: regular-expression rules for PHI
// (identifiers, contact details, labelled demographics) and the gitleaks
// default rule set for credentials. Matches are merged and replaced with a
// redaction marker; findings record rule IDs and offsets, never the value.
package deid
