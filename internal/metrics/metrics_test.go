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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistration(t *testing.T) {
	if KelEventsAdmitted == nil {
		t.Error("KelEventsAdmitted metric is nil")
	}
	if GroupMessagesSent == nil {
		t.Error("GroupMessagesSent metric is nil")
	}
	if GroupQuorumChecks == nil {
		t.Error("GroupQuorumChecks metric is nil")
	}
	if ChallengesIssued == nil {
		t.Error("ChallengesIssued metric is nil")
	}
	if ChallengesVerified == nil {
		t.Error("ChallengesVerified metric is nil")
	}
}

func TestMetricsIncrement(t *testing.T) {
	KelEventsAdmitted.WithLabelValues("icp", "accepted").Inc()
	GroupMessagesSent.Inc()
	GroupMessagesReceived.WithLabelValues("accepted").Inc()
	GroupMessagesCanonicalized.WithLabelValues("false").Inc()
	GroupQuorumChecks.WithLabelValues("reached").Inc()
	ChallengesIssued.WithLabelValues("send").Inc()
	ChallengesVerified.WithLabelValues("send", "success").Inc()

	if count := testutil.CollectAndCount(KelEventsAdmitted); count == 0 {
		t.Error("KelEventsAdmitted has no metrics collected")
	}
	if count := testutil.CollectAndCount(ChallengesVerified); count == 0 {
		t.Error("ChallengesVerified has no metrics collected")
	}
}

func TestHandler_NotNil(t *testing.T) {
	if Handler() == nil {
		t.Error("Handler() returned nil")
	}
}
