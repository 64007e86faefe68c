package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjectInfo_Sanitize(t *testing.T) {
	tests := []struct {
		name string
		in   SubjectInfo
		want SubjectInfo
	}{
		{
			name: "Plain values are kept",
			in:   SubjectInfo{CommonName: "Jane Doe", Organization: "Acme Inc.", Country: "mx", Email: "jane.doe+sign@example.com"},
			want: SubjectInfo{CommonName: "Jane Doe", Organization: "Acme Inc.", Country: "MX", Email: "jane.doe+sign@example.com"},
		},
		{
			name: "Config metacharacters are stripped",
			in:   SubjectInfo{CommonName: "Jane/CN=Evil\n[ext]", Locality: "Quito; rm -rf"},
			want: SubjectInfo{CommonName: "JaneCNEvilext", Locality: "Quito rm -rf"},
		},
		{
			name: "Non ASCII is dropped and spaces collapse",
			in:   SubjectInfo{CommonName: "  José   Núñez  "},
			want: SubjectInfo{CommonName: "Jos Nez"},
		},
		{
			name: "Country keeps two letters",
			in:   SubjectInfo{CommonName: "x", Country: "E-C-U"},
			want: SubjectInfo{CommonName: "x", Country: "EC"},
		},
		{
			name: "Single letter country is dropped",
			in:   SubjectInfo{CommonName: "x", Country: "E1"},
			want: SubjectInfo{CommonName: "x"},
		},
		{
			name: "Email keeps address characters only",
			in:   SubjectInfo{CommonName: "x", Email: "a b<c>@d.e"},
			want: SubjectInfo{CommonName: "x", Email: "abc@d.e"},
		},
		{
			name: "Only forbidden characters gives empty common name",
			in:   SubjectInfo{CommonName: "<<>>"},
			want: SubjectInfo{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Sanitize())
		})
	}

	t.Run("Fields are bounded", func(t *testing.T) {
		got := SubjectInfo{CommonName: strings.Repeat("a", 200), Organization: strings.Repeat("b ", 100)}.Sanitize()
		assert.Len(t, got.CommonName, MaxSubjectFieldLength)
		assert.LessOrEqual(t, len(got.Organization), MaxSubjectFieldLength)
		assert.False(t, strings.HasSuffix(got.Organization, " "))
	})
}

func TestSubjectInfo_Name(t *testing.T) {
	s := SubjectInfo{CommonName: "Jane Doe", Organization: "Acme", State: "Pichincha", Country: "EC"}
	name := s.Name()

	assert.Equal(t, "Jane Doe", name.CommonName)
	assert.Equal(t, []string{"Acme"}, name.Organization)
	assert.Equal(t, []string{"Pichincha"}, name.Province)
	assert.Equal(t, []string{"EC"}, name.Country)
	assert.Nil(t, name.Locality)
	assert.Nil(t, name.OrganizationalUnit)

	back := SubjectFromName(name, []string{"jane@example.com"})
	s.Email = "jane@example.com"
	assert.Equal(t, s, back)
}
