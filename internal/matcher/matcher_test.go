package matcher

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/whatsapp-hospital-bot/internal/appointment"
)

func doctors(names ...string) []appointment.Doctor {
	out := make([]appointment.Doctor, 0, len(names))
	for _, n := range names {
		out = append(out, appointment.Doctor{ID: uuid.New(), Name: n, Active: true})
	}
	return out
}

func departments(names ...string) []appointment.Department {
	out := make([]appointment.Department, 0, len(names))
	for i, n := range names {
		out = append(out, appointment.Department{ID: uuid.New(), Name: n, DisplayOrder: i + 1, Active: true})
	}
	return out
}

func TestFindMentionedDoctor(t *testing.T) {
	docs := doctors("Dr. Anil", "Dr. Kevin Taylor", "Dr. Meera Nair")

	tests := []struct {
		text string
		want string
	}{
		{"Book dr kevin tomorrow", "Dr. Kevin Taylor"},
		{"appointment with TAYLOR please", "Dr. Kevin Taylor"},
		{"dr.anil at 4pm", "Dr. Anil"},
		{"can I see meera?", "Dr. Meera Nair"},
		{"book appointment", ""},
		{"kevinson", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := FindMentionedDoctor(tt.text, docs)
			if tt.want == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, got.Name)
		})
	}
}

func TestFindMentionedDoctorFirstMatchWins(t *testing.T) {
	docs := doctors("Dr. Anil Kumar", "Dr. Anil Menon")
	got, ok := FindMentionedDoctor("anil menon", docs)
	require.True(t, ok)
	assert.Equal(t, "Dr. Anil Kumar", got.Name)
}

func TestShortTokensAreIgnored(t *testing.T) {
	docs := doctors("Dr. Al Bo")
	_, ok := FindMentionedDoctor("al bo", docs)
	assert.False(t, ok)
}

func TestFindMentionedDepartment(t *testing.T) {
	depts := departments("Cardiology", "Orthopedics", "Pediatrics", "General Medicine", "Dermatology", "ENT")

	tests := []struct {
		text string
		want string
	}{
		{"I have an appointment", ""},
		{"need an ENT specialist", "ENT"},
		{"cardio please", "Cardiology"},
		{"book cardiology", "Cardiology"},
		{"ortho", "Orthopedics"},
		{"skin rash", "Dermatology"},
		{"pedia for my son", "Pediatrics"},
		{"general", "General Medicine"},
		{"general medicine doctor", "General Medicine"},
		{"medicine", ""},
		{"dentist", ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := FindMentionedDepartment(tt.text, depts)
			if tt.want == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, got.Name)
		})
	}
}

func TestNormalizeAndTokens(t *testing.T) {
	assert.Equal(t, "kevin taylor", Normalize("  Dr. Kevin Taylor "))
	assert.Equal(t, "anil", Normalize("DR Anil"))
	assert.Equal(t, "drew", Normalize("Drew"))
	assert.Equal(t, []string{"kevin", "taylor"}, SignificantTokens("Dr. Kevin Taylor"))
}
