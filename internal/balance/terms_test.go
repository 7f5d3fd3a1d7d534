package balance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDueDateDays(t *testing.T) {
	issued := date(2025, time.March, 10)

	require.Equal(t, date(2025, time.April, 9), DueDate(issued, "30 jours"))
	require.Equal(t, date(2025, time.April, 24), DueDate(issued, "45 jours"))
	require.Equal(t, date(2025, time.April, 9), DueDate(issued, "30J"))
	require.Equal(t, date(2025, time.June, 8), DueDate(issued, "90"))
}

func TestDueDateImmediate(t *testing.T) {
	issued := date(2025, time.March, 10)

	require.Equal(t, issued, DueDate(issued, "comptant"))
	require.Equal(t, issued, DueDate(issued, "à réception"))
	require.Equal(t, issued, DueDate(issued, "Paiement comptant"))
}

func TestDueDateEndOfMonth(t *testing.T) {
	issued := date(2025, time.March, 10)

	require.Equal(t, date(2025, time.March, 31), DueDate(issued, "fin de mois"))
	require.Equal(t, date(2025, time.April, 15), DueDate(issued, "fin de mois +15"))
	require.Equal(t, date(2025, time.April, 30), DueDate(issued, "Fin de mois + 30"))

	// February end resolves correctly.
	require.Equal(t, date(2025, time.February, 28), DueDate(date(2025, time.February, 5), "fin de mois"))
}

func TestDueDateDefaults(t *testing.T) {
	issued := date(2025, time.March, 10)
	want := date(2025, time.April, 9)

	require.Equal(t, want, DueDate(issued, ""))
	require.Equal(t, want, DueDate(issued, "selon contrat"))
	require.Equal(t, want, DueDate(issued, "???"))
}

func TestBucketFor(t *testing.T) {
	cases := map[int]string{
		-5:  Bucket0To30,
		0:   Bucket0To30,
		30:  Bucket0To30,
		31:  Bucket31To60,
		45:  Bucket31To60,
		60:  Bucket31To60,
		61:  Bucket61To90,
		90:  Bucket61To90,
		91:  BucketOver90,
		365: BucketOver90,
	}
	for days, want := range cases {
		require.Equal(t, want, bucketFor(days), "days=%d", days)
	}
}
