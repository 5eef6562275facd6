// Package config defines the contest shape: how many stages there are,
// which of them need two answers, per-stage presentation data and the
// local fallback answer table.
//
// Contest definitions are written in CUE:
//
//	contest: {
//		total: 16
//		two_step: {from: 5, to: 15}
//		admin_email: "admin@example.com"
//		stages: [
//			{id: 1, title: "Stage 1", answers: {"1": "istanbul"}},
//		]
//	}
//
// Every field has a default, and stages not listed get a
// generated title. The embedded reference contest is available via Default.
package config
