package service

import (
	"testing"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/model"
)

func TestDecideStatus(t *testing.T) {
	tests := []struct {
		name     string
		accepted int
		rejected int
		score    int
		want     model.AcceptanceStatus
	}{
		{"no verifications", 0, 0, 90, model.StatusUnknown},
		{"too few", 2, 0, 90, model.StatusPending},
		{"unanimous", 3, 0, 90, model.StatusAccepted},
		{"two to one", 2, 1, 60, model.StatusAccepted},
		{"two to one low confidence", 2, 1, 55, model.StatusPending},
		{"one to two", 1, 2, 70, model.StatusNotAccepted},
		{"unanimous rejection", 0, 4, 80, model.StatusNotAccepted},
		{"tie", 2, 2, 80, model.StatusPending},
		{"three to two", 3, 2, 80, model.StatusPending},
		{"four to two", 4, 2, 80, model.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decideStatus(model.Tally{Accepted: tt.accepted, Rejected: tt.rejected}, tt.score)
			if got != tt.want {
				t.Errorf("decideStatus(%d-%d, %d) = %s, want %s", tt.accepted, tt.rejected, tt.score, got, tt.want)
			}
		})
	}
}

func TestTallyAgreementVotes(t *testing.T) {
	tests := []struct {
		name          string
		tally         model.Tally
		agree, disagree int
	}{
		{"no votes", model.Tally{Accepted: 2, Rejected: 1}, 2, 1},
		{"votes back majority", model.Tally{Accepted: 2, Rejected: 1, AcceptUpvotes: 2, RejectDownvotes: 1}, 5, 1},
		{"votes back minority", model.Tally{Accepted: 2, Rejected: 1, RejectUpvotes: 3}, 2, 4},
		{"majority challenged", model.Tally{Accepted: 2, Rejected: 1, AcceptDownvotes: 2}, 2, 3},
		{"rejecting majority", model.Tally{Accepted: 1, Rejected: 2, AcceptUpvotes: 3, RejectUpvotes: 1, AcceptDownvotes: 1}, 4, 4},
		{"tie measured against accepting", model.Tally{Accepted: 1, Rejected: 1, AcceptUpvotes: 1}, 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agree, disagree := tt.tally.AgreementVotes()
			if agree != tt.agree || disagree != tt.disagree {
				t.Errorf("AgreementVotes = (%d, %d), want (%d, %d)", agree, disagree, tt.agree, tt.disagree)
			}
		})
	}
}
