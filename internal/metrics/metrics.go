// kerimesh - KERI identity and group-chat consensus engine
// Copyright (C) 2025 kerimesh contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package metrics exposes Prometheus counters, gauges, and histograms for
// the KERI event store, the group consensus engine, and the challenge
// authenticator, on a dedicated registry served by StartServer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kerimesh"

// Registry is the dedicated Prometheus registry every metric in this
// package registers against, kept separate from the global default
// registry so tests can spin up isolated collectors.
var Registry = prometheus.NewRegistry()

var (
	// KelEventsAdmitted tracks putEvent outcomes by kind and result.
	KelEventsAdmitted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keri",
			Name:      "events_admitted_total",
			Help:      "Total number of KEL/TEL events admitted by putEvent/putTelEvent",
		},
		[]string{"kind", "result"}, // icp/rot/ixn/vcp/iss/rev, accepted/rejected
	)

	// KelEventVerifyDuration tracks SAID verification and chaining check
	// latency.
	KelEventVerifyDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "keri",
			Name:      "event_verify_duration_seconds",
			Help:      "Duration of SAID verification and chaining checks",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12), // 0.1ms to 204ms
		},
	)

	// GroupMessagesSent tracks Send outcomes.
	GroupMessagesSent = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "group",
			Name:      "messages_sent_total",
			Help:      "Total number of group messages sent by this member",
		},
	)

	// GroupMessagesReceived tracks ReceiveMessage outcomes by result.
	GroupMessagesReceived = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "group",
			Name:      "messages_received_total",
			Help:      "Total number of group messages received",
		},
		[]string{"result"}, // accepted/rejected
	)

	// GroupMessagesCanonicalized tracks messages reaching quorum, by
	// whether they won a conflict resolution.
	GroupMessagesCanonicalized = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "group",
			Name:      "messages_canonicalized_total",
			Help:      "Total number of group messages transitioning to canonical",
		},
		[]string{"via_conflict"}, // true/false
	)

	// GroupMessagesDiscarded tracks messages losing conflict resolution.
	GroupMessagesDiscarded = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "group",
			Name:      "messages_discarded_total",
			Help:      "Total number of group messages discarded by conflict resolution",
		},
	)

	// GroupQuorumChecks tracks quorum evaluation outcomes.
	GroupQuorumChecks = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "group",
			Name:      "quorum_checks_total",
			Help:      "Total number of hasQuorum evaluations",
		},
		[]string{"result"}, // reached/pending
	)

	// GroupSyncDuration tracks the sync-strategy race's wall-clock time.
	GroupSyncDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "group",
			Name:      "sync_duration_seconds",
			Help:      "Duration of a sync request/response race",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to 8s
		},
		[]string{"result"}, // success/timeout
	)

	// ChallengesIssued tracks IssueChallenge calls by purpose.
	ChallengesIssued = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "challenge",
			Name:      "issued_total",
			Help:      "Total number of challenges issued",
		},
		[]string{"purpose"},
	)

	// ChallengesVerified tracks Verify outcomes by result code.
	ChallengesVerified = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "challenge",
			Name:      "verified_total",
			Help:      "Total number of challenge verification attempts",
		},
		[]string{"purpose", "result"}, // success, or a kerierr.Code on failure
	)
)
