package matchid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUID(t *testing.T) {
	cases := []struct {
		in   string
		want UID
	}{
		{"ew_0_17", UID{Kind: UIDTemporal, ScopeLetter: "w", Key: 0, ID: 17}},
		{"em_12_3", UID{Kind: UIDTemporal, ScopeLetter: "m", Key: 12, ID: 3}},
		{"es_1_99", UID{Kind: UIDTemporal, ScopeLetter: "s", Key: 1, ID: 99}},
		{"e_31_5", UID{Kind: UIDTemporal, ScopeLetter: "", Key: 31, ID: 5}},
		{"m_-2_4", UID{Kind: UIDParticipant, ID: 4}},
		{"n_250", UID{Kind: UIDAnchor, ID: 250}},
		{"p_first_language_8", UID{Kind: UIDParticipantAttribute, Attribute: "first_language", ID: 8}},
		{"t_duration_2", UID{Kind: UIDTranscriptAttribute, Attribute: "duration", ID: 2}},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseUID(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.in, got.String())
		})
	}
}

func TestParseUIDErrors(t *testing.T) {
	for _, s := range []string{"", "x_1", "ew_0", "ew_a_1", "eq_1_1", "m_-2_x", "p__1", "t_attr_x"} {
		_, err := ParseUID(s)
		assert.Error(t, err, s)
	}
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "ew_2_5", Temporal("w", 2, 5))
	assert.Equal(t, "m_-2_11", Participant(11))
	assert.Equal(t, "n_3", Anchor(3))
}
