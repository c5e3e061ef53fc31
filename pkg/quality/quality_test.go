package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kass/go-ev-atlas/pkg/models"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(n int) *int           { return &n }

func timePtr(t time.Time) *time.Time { return &t }

// clean returns a record no rule matches.
func clean(id string) models.Station {
	created := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
	return models.Station{
		ID:               id,
		Lat:              47.5,
		Lon:              19.0,
		City:             "Budapest",
		Operator:         "Mobiliti",
		Status:           models.StatusOperational,
		Capacity:         intPtr(2),
		Pricing:          models.Pricing{EnergyPriceKWh: floatPtr(150)},
		CreationDate:     timePtr(created),
		LastVerifiedDate: timePtr(created.AddDate(0, 6, 0)),
	}
}

func TestScanCleanRecords(t *testing.T) {
	issues, err := Scan([]models.Station{clean("a"), clean("b")})
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestScanMissingPrice(t *testing.T) {
	// Paid station without a price: flagged as missing-price, never as
	// the catch-all kind.
	s := clean("a")
	s.Pricing = models.Pricing{PaidUnspecified: true}

	issues, err := Scan([]models.Station{s})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, MissingPrice, issues[0].Kind)
	assert.Equal(t, "a", issues[0].ID)
	assert.Equal(t, "Budapest", issues[0].City)
	assert.Equal(t, "Mobiliti", issues[0].Operator)
}

func TestScanFreeStationIsNotMissingPrice(t *testing.T) {
	s := clean("a")
	s.Pricing = models.Pricing{Free: true}

	issues, err := Scan([]models.Station{s})
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestScanMissingOperationalStatus(t *testing.T) {
	s := clean("a")
	s.Status = models.StatusUnknown

	issues, err := Scan([]models.Station{s})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, MissingOperationalStatus, issues[0].Kind)
}

func TestScanMissingCapacity(t *testing.T) {
	s := clean("a")
	s.Capacity = nil

	issues, err := Scan([]models.Station{s})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, MissingCapacity, issues[0].Kind)
}

func TestScanVerificationBeforeCreation(t *testing.T) {
	s := clean("a")
	created := *s.CreationDate
	s.LastVerifiedDate = timePtr(created.AddDate(0, 0, -1))

	issues, err := Scan([]models.Station{s})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, VerificationBeforeCreation, issues[0].Kind)
}

func TestScanMissingDatesAreNotAnOrderingIssue(t *testing.T) {
	s := clean("a")
	s.LastVerifiedDate = nil

	issues, err := Scan([]models.Station{s})
	require.NoError(t, err)
	assert.Empty(t, issues, "ordering is only checked when both dates exist")
}

func TestScanPriorityOrder(t *testing.T) {
	// Missing price outranks everything else.
	worst := clean("worst")
	worst.Pricing = models.Pricing{}
	worst.Status = models.StatusUnknown
	worst.Capacity = nil

	// Unknown status outranks missing capacity.
	unknown := clean("unknown")
	unknown.Status = models.StatusUnknown
	unknown.Capacity = nil

	issues, err := Scan([]models.Station{worst, unknown})
	require.NoError(t, err)
	require.Len(t, issues, 2, "one issue per flagged record")
	assert.Equal(t, MissingPrice, issues[0].Kind)
	assert.Equal(t, MissingOperationalStatus, issues[1].Kind)
}

func TestScanPreservesInputOrder(t *testing.T) {
	a := clean("a")
	a.Capacity = nil
	b := clean("b")
	c := clean("c")
	c.Status = models.StatusUnknown

	issues, err := Scan([]models.Station{a, b, c})
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, "a", issues[0].ID)
	assert.Equal(t, "c", issues[1].ID)
}

func TestScanDoesNotMutateInput(t *testing.T) {
	s := clean("a")
	s.Capacity = nil
	before := s

	_, err := Scan([]models.Station{s})
	require.NoError(t, err)
	assert.Equal(t, before, s)
}

func TestIssueKindString(t *testing.T) {
	assert.Equal(t, "missing-price", MissingPrice.String())
	assert.Equal(t, "missing-operational-status", MissingOperationalStatus.String())
	assert.Equal(t, "missing-capacity", MissingCapacity.String())
	assert.Equal(t, "verification-before-creation", VerificationBeforeCreation.String())
	assert.Equal(t, "other", OtherIssue.String())
}
